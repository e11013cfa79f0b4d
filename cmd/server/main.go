// Package main is the entry point of the reservation service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-reservation-cache/internal/config"
	"github.com/goliatone/go-reservation-cache/pkg/di"
	"github.com/goliatone/go-reservation-cache/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		// stdout/stderr may not be syncable
		_ = log.Sync()
	}()

	log.Info("starting reservation service",
		zap.String("environment", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := di.NewContainer(startCtx, cfg, log)
	startCancel()
	if err != nil {
		log.Fatal("failed to initialize services", zap.Error(err))
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error("failed to release resources", zap.Error(err))
		}
	}()

	app := container.HTTPApp()

	errChan := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.String("addr", cfg.Server.Addr()))
		if err := app.Listen(cfg.Server.Addr()); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("HTTP server error", zap.Error(err))
		return
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	log.Info("shutting down server...")
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	log.Info("server shut down successfully")
}
