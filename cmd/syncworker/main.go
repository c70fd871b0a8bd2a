package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"workshop_portal_backend/internal/events"
	"workshop_portal_backend/internal/scheduler"
	"workshop_portal_backend/internal/workshop/adapters/erp"
	"workshop_portal_backend/platform/config"
	"workshop_portal_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting sync worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewInMemoryBus(log)

	erpClient := erp.NewClient(cfg, log)

	worker, err := scheduler.NewWorker(cfg, erpClient, eventBus, log)
	if err != nil {
		log.Error("failed to initialize sync worker", "error", err)
		panic("failed to initialize sync worker: " + err.Error())
	}

	worker.Run(ctx)
}
