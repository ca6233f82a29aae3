// Package main is the entry point for the offer engine API server.
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

	"offerengine/internal/app"
	"offerengine/internal/core/security"
	v1 "offerengine/internal/infrastructure/http/v1"
	"offerengine/pkg/logger"
)

var version = "dev"

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
	ctx = logger.WithLogger(ctx, log)

	log.Infow("starting offer engine server", "version", version)

	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer engine.Close()

	if err := engine.Start(ctx); err != nil {
		log.Fatalw("failed to start cache listener", "error", err)
	}

	if cfg.JWTSecret == "" {
		if !cfg.Development() {
			log.Fatal("JWT_SECRET is required outside development")
		}
		cfg.JWTSecret = "dev-secret-change-me"
		log.Warn("using development JWT secret")
	}
	jwtService := security.NewJWTService(security.DefaultJWTConfig(cfg.JWTSecret))

	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		DB:           engine.Pool,
		Version:      version,
		Pricing:      engine.Promotions,
		OfferCodes:   engine.Promotions,
		Orders:       engine.Orders,
		Reprice:      engine.Queue,
		History:      engine.Audit,
		Switches:     engine.Flags,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	log.Info("server stopped")
}
