package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jimdaga/givethnotes/internal/blocks"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/config"
	"github.com/jimdaga/givethnotes/internal/provisioning"
)

// Provisioner runs the daily journal entry job.
type Provisioner interface {
	RunIfNeeded(ctx context.Context) (provisioning.Result, error)
}

// Reconciler repairs block position gaps.
type Reconciler interface {
	Reconcile(ctx context.Context) (blocks.ReconcileResult, error)
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, logger *slog.Logger, p Provisioner, r Reconciler) error {
	srv, mux, err := newServer(cfg, logger, p, r)
	if err != nil {
		return err
	}

	// Run blocks and handles its own signal interception
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, logger *slog.Logger, p Provisioner, r Reconciler) (stop func(), err error) {
	srv, mux, err := newServer(cfg, logger, p, r)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, logger *slog.Logger, p Provisioner, r Reconciler) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     2,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	mux := NewMux(logger, p, r)

	logger.Info("Worker starting", "concurrency", 2)
	return srv, mux, nil
}

// NewMux routes task types to their handlers.
func NewMux(logger *slog.Logger, p Provisioner, r Reconciler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProvisionEntries, handleProvision(logger, p))
	mux.HandleFunc(TaskReconcileBlocks, handleReconcile(logger, r))
	return mux
}

// handleProvision runs the provisioning engine. A failed run leaves the
// job marker untouched, so returning the error lets asynq retry it.
func handleProvision(logger *slog.Logger, p Provisioner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		taskID, _ := asynq.GetTaskID(ctx)
		logger.Info("Processing journal:provision task", "task_id", taskID)

		res, err := p.RunIfNeeded(ctx)
		if err != nil {
			return fmt.Errorf("provisioning failed: %w", err)
		}

		logger.Info(
			"Provision task done",
			"task_id", taskID,
			"run_id", res.RunID,
			"day", clock.FormatDay(res.Day),
			"skipped", res.Skipped,
			"created", res.Created,
			"backfilled", res.Backfilled,
		)
		return nil
	}
}

func handleReconcile(logger *slog.Logger, r Reconciler) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		res, err := r.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("reconcile failed: %w", err)
		}

		if len(res.Repaired) > 0 {
			logger.Warn("Reconciled block positions", "checked", res.Checked, "repaired", len(res.Repaired), "entry_ids", res.Repaired)
		} else {
			logger.Info("Block positions contiguous", "checked", res.Checked)
		}
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Check if this is the final failure (task will move to dead letter queue)
		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
			)
		}
	}
}
