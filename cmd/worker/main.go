package main

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"scenegen/internal/config"
	"scenegen/internal/ledger"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/pkg/shutdown"
	"scenegen/internal/run"
	"scenegen/internal/worker"
	"scenegen/internal/worker/pool"
	"scenegen/internal/worker/queue"
)

func main() {
	log := logger.NewDefault().WithComponent("worker-main")

	cfg, err := config.Load(config.Env("SCENEGEN_CONFIG", ""))
	if err != nil {
		log.LogFatal("failed to load configuration", err)
	}

	mgr := shutdown.NewManager(log, 30*time.Second)
	ctx := mgr.Context()

	stack, err := run.NewStack(ctx, cfg, log)
	if err != nil {
		log.LogFatal("failed to build pipeline", err)
	}

	l, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		log.LogFatal("failed to open ledger", err)
	}
	mgr.Register("ledger", func(context.Context) error { return l.Close() })

	log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	mgr.Register("redis", func(context.Context) error { return rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	mgr.Listen()
	err = worker.Run(ctx, worker.Deps{
		Source:   queue.NewRedisQueue(rdb, cfg.Redis.Queue),
		Pipeline: stack.Processor,
		Pool: pool.Config{
			MaxWorkers:    cfg.MaxWorkers,
			RenderTimeout: cfg.Renderer.Timeout,
			Retry: pool.RetryPolicy{
				TransientRetries: cfg.Retry.TransientRetries,
				MalformedRetries: cfg.Retry.MalformedRetries,
				Backoff:          cfg.Retry.Backoff,
			},
		},
		Ledger: l,
		Name:   cfg.Redis.Queue,
		Log:    log,
	})
	if serr := mgr.Shutdown(); serr != nil {
		log.Warn("shutdown incomplete", "error", serr.Error())
	}
	if err != nil && !stderrors.Is(err, context.Canceled) {
		log.Error("worker stopped with error", "error", err.Error())
		os.Exit(1)
	}
}
