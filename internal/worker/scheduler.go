package worker

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/jimdaga/givethnotes/internal/config"
)

// StartScheduler creates and starts an Asynq Scheduler for the periodic
// provisioning and reconciliation tasks. Returns a stop function for
// graceful shutdown.
func StartScheduler(cfg *config.Config, logger *slog.Logger) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: cfg.Location(),
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	provisionID, err := scheduler.Register(cfg.ProvisionSchedule, provisionTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register provision schedule: %w", err)
	}
	reconcileID, err := scheduler.Register(cfg.ReconcileSchedule, reconcileTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register reconcile schedule: %w", err)
	}

	// Start scheduler (non-blocking)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info(
		"Scheduler started",
		"provision_schedule", cfg.ProvisionSchedule,
		"reconcile_schedule", cfg.ReconcileSchedule,
		"timezone", cfg.JournalTimezone,
		"provision_entry_id", provisionID,
		"reconcile_entry_id", reconcileID,
	)

	return func() { scheduler.Shutdown() }, nil
}
