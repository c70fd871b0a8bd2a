package scheduler

import (
	"context"
	"fmt"

	"workshop_portal_backend/internal/events"
	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/platform/config"
	"workshop_portal_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker delivers queued order patches and finalizations to the backend.
// Failures are retried by asynq; every failed attempt also publishes an
// advisory sync-failure event so the board can surface it.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	orders ports.OrderStore
	bus    events.Bus
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, orders ports.OrderStore, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		orders: orders,
		bus:    bus,
		log:    log,
	}

	mux.HandleFunc(TaskOrderSync, w.handleOrderSync)
	mux.HandleFunc(TaskOrderFinalize, w.handleOrderFinalize)

	return w, nil
}

func (w *Worker) handleOrderSync(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOrderSyncPayload(task)
	if err != nil {
		return err
	}

	if err := w.orders.UpdateOrder(ctx, payload.OrderKey, payload.Patch); err != nil {
		w.log.RemoteSyncError("order sync", payload.OrderKey, err)
		w.publishFailure(ctx, payload.OrderKey, err)
		return err
	}

	w.log.WithOrderKey(payload.OrderKey).Info("order synced to backend")
	return nil
}

func (w *Worker) handleOrderFinalize(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOrderFinalizePayload(task)
	if err != nil {
		return err
	}

	if err := w.orders.DeleteOrder(ctx, payload.OrderKey); err != nil {
		w.log.RemoteSyncError("order finalize", payload.OrderKey, err)
		w.publishFailure(ctx, payload.OrderKey, err)
		return err
	}

	w.log.WithOrderKey(payload.OrderKey).Info("order finalized on backend")
	return nil
}

func (w *Worker) publishFailure(ctx context.Context, orderKey string, err error) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(ctx, events.OrderSyncFailed{
		BaseEvent: events.NewBaseEvent(),
		OrderKey:  orderKey,
		Reason:    err.Error(),
	})
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("sync worker stopped", "error", err)
	}
}
