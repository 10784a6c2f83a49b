package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // chat-core
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

type Redis struct {
	Addr     string `yaml:"addr"` // пусто — кэш presence выключен
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"` // напр. "10m"
}

type Chat struct {
	MaxContentLen int    `yaml:"maxContentLen"` // default 1000
	DedupWindow   string `yaml:"dedupWindow"`   // default 5m
}

type Presence struct {
	LivenessTimeout string `yaml:"livenessTimeout"` // default 5m
	SweepInterval   string `yaml:"sweepInterval"`   // default 30s
}

type Call struct {
	RingTimeout string `yaml:"ringTimeout"` // default 60s
	GCInterval  string `yaml:"gcInterval"`  // default 5s
}

type WS struct {
	PingInterval string `yaml:"pingInterval"` // default 15s
	QueueSize    int    `yaml:"queueSize"`    // default 64
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Chat     Chat     `yaml:"chat"`
	Presence Presence `yaml:"presence"`
	Call     Call     `yaml:"call"`
	WS       WS       `yaml:"ws"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-core"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Chat.MaxContentLen <= 0 {
		c.Chat.MaxContentLen = 1000
	}
	return nil
}

// --- разбор duration-полей с дефолтами ---

func (c *Config) DedupWindow() time.Duration {
	return parseDurationOr(5*time.Minute, c.Chat.DedupWindow)
}

func (c *Config) LivenessTimeout() time.Duration {
	return parseDurationOr(5*time.Minute, c.Presence.LivenessTimeout)
}

func (c *Config) SweepInterval() time.Duration {
	return parseDurationOr(30*time.Second, c.Presence.SweepInterval)
}

func (c *Config) RingTimeout() time.Duration {
	return parseDurationOr(60*time.Second, c.Call.RingTimeout)
}

func (c *Config) CallGCInterval() time.Duration {
	return parseDurationOr(5*time.Second, c.Call.GCInterval)
}

func (c *Config) WSPingInterval() time.Duration {
	return parseDurationOr(15*time.Second, c.WS.PingInterval)
}

func (c *Config) RedisTTL() time.Duration {
	return parseDurationOr(10*time.Minute, c.Redis.TTL)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
