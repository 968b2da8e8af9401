package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/pairchat/internal/auth"
	"github.com/Tyrowin/pairchat/internal/config"
	"github.com/Tyrowin/pairchat/internal/logging"
	"github.com/Tyrowin/pairchat/internal/messagelog"
	"github.com/Tyrowin/pairchat/internal/metrics"
	"github.com/Tyrowin/pairchat/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run builds every component, serves until a signal arrives and shuts down
// in order so deferred cleanup always runs.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() && cfg.JWTSecret == config.DevelopmentSecret {
		logger.Warn("JWT_SECRET is not set; using the development secret in production")
	}

	users := auth.NewUsers(0)
	if err := users.SeedDemoUsers(cfg.DemoUsers); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("Closing message log")
		if err := store.Close(); err != nil {
			logger.Error("Error closing message log", zap.Error(err))
		}
	}()

	srv := server.New(server.Options{
		Config:  cfg,
		Users:   users,
		Log:     store,
		Logger:  logger,
		Metrics: metrics.NewCollector("pairchat"),
	})
	httpServer := server.CreateServer(cfg.Port, srv.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.StartServer(httpServer, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	timeout := time.Duration(cfg.ShutdownTimeout)
	if err := server.ShutdownServer(httpServer, timeout, logger); err != nil {
		logger.Warn("HTTP server did not stop cleanly", zap.Error(err))
	}
	if err := srv.Hub().Shutdown(timeout); err != nil {
		logger.Warn("Connections did not stop cleanly", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}

func openStore(cfg config.Config, logger *zap.Logger) (messagelog.Store, error) {
	if cfg.BadgerPath == "" {
		logger.Info("Using in-memory message log")
		return messagelog.NewMemory(), nil
	}
	store, err := messagelog.OpenBadger(cfg.BadgerPath, logger.Named("badger"))
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	logger.Info("Using badger message log", zap.String("path", cfg.BadgerPath))
	return store, nil
}
