package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lughabridge/lughabridge/internal/config"
	"github.com/lughabridge/lughabridge/internal/httpapi"
	"github.com/lughabridge/lughabridge/internal/hub"
	"github.com/lughabridge/lughabridge/internal/journal"
	"github.com/lughabridge/lughabridge/internal/pipeline"
	"github.com/lughabridge/lughabridge/internal/provider"
	"github.com/lughabridge/lughabridge/internal/room"
)

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		sugar.Fatalw("redis unreachable", "addr", cfg.RedisAddr, "error", err)
	}

	store := room.NewStore(rdb, cfg.RoomTTL, cfg.RoomCodeLength, cfg.MaxRoomMessages, sugar)

	reg, err := provider.Build(cfg, sugar)
	if err != nil {
		sugar.Fatalw("provider setup failed", "error", err)
	}

	h := hub.New(store, sugar)

	var jrnl pipeline.Journal
	if cfg.RabbitURL != "" {
		pub, err := journal.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			sugar.Warnw("outcome journal disabled", "error", err)
		} else {
			defer func() { _ = pub.Close() }()
			jrnl = pub
		}
	}

	orch := pipeline.New(store, reg, h, jrnl, cfg.ProviderTimeout, cfg.MediaDir, sugar)
	h.SetDispatcher(orch)
	orch.Start(cfg.PipelineWorkers)

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		h.Run(ctx)
	}()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(store, h, cfg, sugar),
	}

	go func() {
		sugar.Infow("server listening", "addr", cfg.HTTPAddr, "demo_mode", cfg.DemoMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		sugar.Warnw("http shutdown", "error", err)
	}

	<-hubDone
	orch.Stop()
	sugar.Infow("shutdown complete")
}
