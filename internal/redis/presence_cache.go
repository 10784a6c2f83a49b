package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"

	"github.com/redis/go-redis/v9"
)

// PresenceCache — read-through кэш presence-записей поверх redis.
// Источник истины — postgres; промах кэша не ошибка.
type PresenceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresenceCache(rdb *redis.Client, ttl time.Duration) *PresenceCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PresenceCache{rdb: rdb, ttl: ttl}
}

func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func presenceKey(userID int64) string {
	return "presence:" + strconv.FormatInt(userID, 10)
}

func (c *PresenceCache) Set(ctx context.Context, rec domain.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, presenceKey(rec.UserID), data, c.ttl).Err()
}

// Get возвращает (nil, nil) при промахе кэша.
func (c *PresenceCache) Get(ctx context.Context, userID int64) (*domain.PresenceRecord, error) {
	data, err := c.rdb.Get(ctx, presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.PresenceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
