package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finch/internal/amqp"
	"finch/internal/bridge"
	"finch/internal/config"
	"finch/internal/engine"
	apphttp "finch/internal/http"
	"finch/internal/log"
	"finch/internal/services"
	"finch/internal/storage"
)

func main() {
	// Load .env for local development; absent in production is fine.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{Level: cfg.SlogLevel(), Component: log.ComponentApp})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// The sync quota survives restarts; state lives next to the data.
	var limiter *engine.RateLimiter
	if state, ok, err := repo.LoadLimiterState(context.Background()); err != nil {
		logger.Error("Failed to load limiter state", "error", err)
		os.Exit(1)
	} else if ok {
		limiter = engine.RestoreRateLimiter(state)
	} else {
		limiter = engine.NewRateLimiter(time.Now())
	}

	var source bridge.AccountSource
	if cfg.BridgeAccessURL != "" {
		client, err := bridge.NewClient(cfg.BridgeAccessURL, cfg.BridgeTimeout)
		if err != nil {
			logger.Error("Failed to initialize bridge client", "error", err)
			os.Exit(1)
		}
		source = client
	} else {
		logger.Warn("No bridge access URL configured, refreshes will return empty data")
		source = &bridge.MemorySource{}
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange)
	}

	refresher := &services.RefreshService{
		Store:     repo,
		Source:    source,
		Publisher: publisher,
		Limiter:   limiter,
		DeviceID:  cfg.DeviceID,
	}
	classifier := &services.ClassifierService{Store: repo}

	srv := apphttp.NewServer(":"+cfg.Port, repo, refresher, classifier, limiter)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 2 * time.Minute // refresh calls out to the bridge
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting finch server", "port", cfg.Port, "device_id", cfg.DeviceID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
