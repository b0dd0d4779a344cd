package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/app"
	"github.com/kailas-cloud/lexdex/internal/config"
	logpkg "github.com/kailas-cloud/lexdex/internal/logger"
	"github.com/kailas-cloud/lexdex/internal/metrics"
	chiTransport "github.com/kailas-cloud/lexdex/internal/transport/chi"
	"github.com/kailas-cloud/lexdex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, logOptions(cfg.Logging))
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	build := version.Get()
	logger.Info("Starting lexdex API server",
		zap.String("version", build.Version),
		zap.String("commit", build.Commit),
		zap.Bool("dirty", build.Dirty),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("embedding_providers", len(cfg.Embedding.Providers)),
	)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	if applied, err := a.DB.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	} else if len(applied) > 0 {
		logger.Info("Migrations applied", zap.Strings("versions", applied))
	}

	sched, err := a.Scheduler()
	if err != nil {
		logger.Fatal("Failed to register scheduled jobs", zap.Error(err))
	}
	sched.Start()

	metrics.RegisterHTTPMetrics()
	server := chiTransport.NewServer(a.Services(), logger)
	handler := server.Routes(
		chiTransport.JSONRecoverer(logger),
		chiMiddleware.RequestID,
		chiTransport.WideEvent(logger),
		chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys),
		metrics.Middleware(),
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func logOptions(c config.LoggingConfig) logpkg.Options {
	return logpkg.Options{
		Level: c.Level,
		File: logpkg.FileSink{
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
		},
	}
}
