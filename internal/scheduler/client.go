package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"workshop_portal_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues backend sync tasks. Tasks are deduplicated per order key
// with asynq task IDs: only one sync per order is ever pending, and a newer
// transition replaces the queued patch instead of queueing behind it.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueOrderSync schedules the patch for delivery to the backend.
func (c *Client) EnqueueOrderSync(ctx context.Context, orderKey string, patch map[string]interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewOrderSyncTask(OrderSyncPayload{OrderKey: orderKey, Patch: patch})
	if err != nil {
		return err
	}
	return c.enqueueKeyed(ctx, task, syncTaskID(orderKey))
}

// EnqueueOrderFinalize schedules the backend deletion of a finalized order.
func (c *Client) EnqueueOrderFinalize(ctx context.Context, orderKey string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewOrderFinalizeTask(OrderFinalizePayload{OrderKey: orderKey})
	if err != nil {
		return err
	}
	return c.enqueueKeyed(ctx, task, finalizeTaskID(orderKey))
}

// enqueueKeyed enqueues with a fixed task ID. On an ID conflict the pending
// task carries an older payload for the same order, so it is dropped and
// replaced.
func (c *Client) enqueueKeyed(ctx context.Context, task *asynq.Task, taskID string) error {
	opts := []asynq.Option{asynq.Queue(c.queue), asynq.TaskID(taskID), asynq.MaxRetry(5)}

	_, err := c.client.EnqueueContext(ctx, task, opts...)
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}

	if delErr := c.inspector.DeleteTask(c.queue, taskID); delErr != nil && !errors.Is(delErr, asynq.ErrTaskNotFound) {
		// The pending task is likely mid-execution; it carries the older
		// state, and dropping this newer one would lose the transition.
		return fmt.Errorf("replace queued task %s: %w", taskID, delErr)
	}
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	return err
}

func syncTaskID(orderKey string) string     { return "order-sync:" + orderKey }
func finalizeTaskID(orderKey string) string { return "order-finalize:" + orderKey }

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
