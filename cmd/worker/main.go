// Package main is the entry point for the offer engine background worker.
// It drains the reprice queue and purges finished requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offerengine/internal/app"
	"offerengine/internal/infrastructure/storage/postgres"
	"offerengine/pkg/logger"
)

func main() {
	cfg, err := app.LoadConfigFromEnv()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log.WithComponent("worker"))

	log.Info("starting offer engine worker")

	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer engine.Close()

	if err := engine.Start(ctx); err != nil {
		log.Fatalw("failed to start cache listener", "error", err)
	}

	w := &worker{
		relay:        engine.RepriceRelay(),
		pool:         engine.Pool,
		pollInterval: cfg.WorkerPollInterval,
		retention:    cfg.OutboxRetention,
	}
	w.run(ctx)

	log.Info("worker stopped")
}

type worker struct {
	relay        *postgres.RepriceRelay
	pool         *postgres.Pool
	pollInterval time.Duration
	retention    time.Duration
}

func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	statsTicker := time.NewTicker(5 * time.Minute)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processQueue(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		case <-statsTicker.C:
			postgres.LogPoolStats(ctx, w.pool)
		}
	}
}

// processQueue drains full batches until the queue runs dry.
func (w *worker) processQueue(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			logger.Error(ctx, "reprice batch failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		logger.Debug(ctx, "processed reprice batch", "count", n)
	}
}

func (w *worker) cleanup(ctx context.Context) {
	n, err := w.relay.PurgeProcessed(ctx, w.retention)
	if err != nil {
		logger.Error(ctx, "failed to purge reprice requests", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "purged processed reprice requests", "count", n)
	}
}
