package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finch/internal/amqp"
	"finch/internal/bridge"
	"finch/internal/config"
	"finch/internal/engine"
	"finch/internal/log"
	"finch/internal/services"
	"finch/internal/storage"
)

func main() {
	// Load .env for local development; absent in production is fine.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{Level: cfg.SlogLevel(), Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting finch-worker", "device_id", cfg.DeviceID)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.BridgeAccessURL == "" {
		logger.Error("BRIDGE_ACCESS_URL is required for the worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var limiter *engine.RateLimiter
	if state, ok, err := repo.LoadLimiterState(context.Background()); err != nil {
		logger.Error("Failed to load limiter state", "error", err)
		os.Exit(1)
	} else if ok {
		limiter = engine.RestoreRateLimiter(state)
	} else {
		limiter = engine.NewRateLimiter(time.Now())
	}

	source, err := bridge.NewClient(cfg.BridgeAccessURL, cfg.BridgeTimeout)
	if err != nil {
		logger.Error("Failed to initialize bridge client", "error", err)
		os.Exit(1)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled, running single-device")
	}

	refresher := &services.RefreshService{
		Store:    repo,
		Source:   source,
		Limiter:  limiter,
		DeviceID: cfg.DeviceID,
	}
	if amqpClient != nil {
		refresher.Publisher = amqpClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fold other devices' quota usage into the local limiter so the shared
	// daily budget is never exceeded across devices.
	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeRefresh(ctx, func(msg *amqp.RefreshMessage) error {
				if msg.DeviceID == cfg.DeviceID {
					return nil
				}
				logger.Info("Refresh observed from another device",
					"device_id", msg.DeviceID,
					"new_transactions", msg.Transactions)
				return refresher.MergeRemoteLimiter(ctx, msg.Limiter)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
				cancel()
			}
		}()
	}

	runRefresh := func() {
		if _, err := refresher.Refresh(ctx); err != nil {
			if errors.Is(err, services.ErrRateLimited) {
				logger.Info("Refresh skipped, sync quota exhausted",
					"retry_in", limiter.TimeUntilReset(time.Now()).Truncate(time.Second))
				return
			}
			logger.Error("Refresh failed", "error", err)
		}
	}

	// One refresh on startup, then on the configured interval.
	runRefresh()

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker stopped gracefully")
			return
		case <-ticker.C:
			runRefresh()
		}
	}
}
