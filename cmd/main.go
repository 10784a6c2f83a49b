package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/config"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/call"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/postgres"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/presence"
	rediscache "github.com/FlorentLefevre-lab/dating-app-sub001/internal/redis"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/registry"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/service"
	grpcx "github.com/FlorentLefevre-lab/dating-app-sub001/internal/transport/grpc"
	httpx "github.com/FlorentLefevre-lab/dating-app-sub001/internal/transport/http"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/transport/ws"
	"github.com/FlorentLefevre-lab/dating-app-sub001/pkg/logger"

	"google.golang.org/grpc"
)

// presenceNotifier разводит переходы 0→1 / 1→0 реестра по подписчикам:
// tracker ведёт presence, call machine гасит звонки отвалившихся.
type presenceNotifier struct {
	tracker *presence.Tracker
	calls   *call.Machine
}

func (n *presenceNotifier) HandleOnline(userID int64) {
	n.tracker.HandleOnline(userID)
}

func (n *presenceNotifier) HandleOffline(userID int64) {
	n.tracker.HandleOffline(userID)
	n.calls.HandleOffline(userID)
}

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-core",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, postgres.PoolConfig{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		ApplicationName: cfg.Logging.Service,
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	messageRepo := postgres.NewMessageRepository(db.Pool)
	presenceRepo := postgres.NewPresenceRepository(db.Pool)
	userRepo := postgres.NewUserRepository(db.Pool)

	// --- redis (опциональный presence-кэш) ---
	var presenceCache presence.Cache = presence.NoopCache{}
	if cfg.Redis.Addr != "" {
		rdb, err := rediscache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer func() { _ = rdb.Close() }()
		presenceCache = rediscache.NewPresenceCache(rdb, cfg.RedisTTL())
	}

	// --- registry, presence, calls, services ---
	reg := registry.New()
	tracker := presence.NewTracker(presenceRepo, presenceCache, reg)
	callMachine := call.NewMachine(reg, cfg.RingTimeout())
	reg.SetNotifier(&presenceNotifier{tracker: tracker, calls: callMachine})

	messageSvc := service.NewMessageService(messageRepo, userRepo, reg,
		cfg.Chat.MaxContentLen, cfg.DedupWindow())

	// --- WS server ---
	wsServer := ws.NewServer(reg, userRepo, messageSvc, tracker, callMachine)
	wsServer.SetQueueSize(cfg.WS.QueueSize)
	wsServer.SetPingInterval(cfg.WSPingInterval())

	// --- фоновые циклы: liveness sweep и ring GC ---
	go callMachine.RunGC(ctx, cfg.CallGCInterval())
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := reg.SweepStale(cfg.LivenessTimeout()); len(evicted) > 0 {
					slog.Info("liveness sweep", "evicted", len(evicted))
				}
			}
		}
	}()

	// --- HTTP ---
	handler := httpx.NewHandler(messageSvc, tracker)
	router := httpx.NewRouter(handler, tracker, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- gRPC (health) ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(10*time.Second)),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor()),
	)
	grpcSrv := grpcx.NewServer(db.Pool)
	grpcx.Register(grpcServer, grpcSrv)
	go grpcSrv.WatchDB(ctx, 15*time.Second)

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal")
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
