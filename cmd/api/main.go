package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"scenegen/internal/config"
	"scenegen/internal/httpapi"
	"scenegen/internal/httpapi/handlers"
	"scenegen/internal/ledger"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/pkg/shutdown"
)

func main() {
	log := logger.NewDefault()
	log.Info("starting scenegen status API", "version", "0.1.0")

	httpPort := config.Env("HTTP_PORT", "8080")
	ledgerDSN := config.MustEnv("SCENEGEN_LEDGER")
	redisAddr := config.Env("REDIS_ADDR", "")

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	log.Info("opening ledger")
	l, err := ledger.Open(ctx, ledgerDSN)
	if err != nil {
		log.LogFatal("failed to open ledger", err)
	}
	shutdownMgr.Register("ledger", func(ctx context.Context) error {
		return l.Close()
	})

	checks := map[string]handlers.Pinger{}
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Ledger: l,
		Checks: checks,
		Log:    log,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + httpPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	if err := shutdownMgr.Wait(ctx); err != nil {
		log.Warn("shutdown incomplete", "error", err.Error())
	}
}
