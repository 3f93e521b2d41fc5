package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskProvisionEntries = "journal:provision"
	TaskReconcileBlocks  = "blocks:reconcile"
)

// provisionTask builds the provisioning task. Unique keeps the scheduler
// and request triggers from queueing more than one per hour; the engine's
// own gate makes any extra run a no-op anyway.
func provisionTask() *asynq.Task {
	return asynq.NewTask(
		TaskProvisionEntries,
		nil, // Empty payload - the engine provisions every career path
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(time.Hour),
	)
}

func reconcileTask() *asynq.Task {
	return asynq.NewTask(
		TaskReconcileBlocks,
		nil,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(time.Hour),
	)
}

// Enqueuer puts provisioning tasks on the queue on behalf of API requests.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates an asynq client for redisURL.
func NewEnqueuer(redisURL string) (*Enqueuer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Enqueuer{client: asynq.NewClient(opt)}, nil
}

// EnqueueProvision queues a provisioning run. A run already queued within
// the uniqueness window is not an error.
func (e *Enqueuer) EnqueueProvision(ctx context.Context) error {
	_, err := e.client.EnqueueContext(ctx, provisionTask())
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return err
	}
	return nil
}

// Close closes the Asynq client connection gracefully.
func (e *Enqueuer) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}
