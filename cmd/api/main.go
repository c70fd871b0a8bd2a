package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workshop_portal_backend/internal/events"
	apphttp "workshop_portal_backend/internal/http"
	"workshop_portal_backend/internal/http/router"
	"workshop_portal_backend/internal/scheduler"
	"workshop_portal_backend/internal/workshop"
	"workshop_portal_backend/internal/workshop/adapters/erp"
	"workshop_portal_backend/platform/config"
	"workshop_portal_backend/platform/kvstore"
	"workshop_portal_backend/platform/logger"
	"workshop_portal_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var cache *kvstore.RedisStore
	if err := withRetry(ctx, log, "cache connection", 5, 2*time.Second, func() error {
		store, err := kvstore.NewFromURL(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
		if err != nil {
			return err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return err
		}
		cache = store
		return nil
	}); err != nil {
		log.Error("failed to connect to cache", "error", err)
		panic("failed to connect to cache: " + err.Error())
	}
	defer func() {
		_ = cache.Close()
	}()
	log.Info("cache connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	syncClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize sync scheduler client", "error", err)
		panic("failed to initialize sync scheduler client: " + err.Error())
	}
	defer func() {
		_ = syncClient.Close()
	}()

	// Shared validator instance for dependency injection
	val := validator.New()

	// Remote ERP adapter: order store plus the two read-only material
	// cross-referencing collections.
	erpClient := erp.NewClient(cfg, log)

	// ========================================================================
	// Domain Modules
	// ========================================================================

	workshopModule := workshop.NewModule(workshop.Sources{
		Orders:        erpClient,
		Requisitions:  erpClient,
		ExpenseOrders: erpClient,
	}, cache, syncClient, eventBus, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   cache,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			workshopModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
