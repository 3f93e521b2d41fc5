// Package provisioning creates each career path's journal entry for the
// current day, at most once per day no matter how often it is triggered.
package provisioning

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/database"
	"github.com/jimdaga/givethnotes/internal/jobstate"
	"github.com/jimdaga/givethnotes/internal/metrics"
)

// JobDailyJournalEntries is the job marker name for daily provisioning.
const JobDailyJournalEntries = "daily_journal_entries"

// backfillBatch bounds the number of ids bound into one UPDATE.
const backfillBatch = 500

// Result summarises one RunIfNeeded call.
type Result struct {
	RunID      string
	Day        datatypes.Date
	Skipped    bool
	Created    int64
	Backfilled int64
}

// Engine runs the daily provisioning job.
type Engine struct {
	db      *gorm.DB
	jobs    *jobstate.Store
	cal     clock.Calendar
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewEngine creates a provisioning engine. collector may be nil.
func NewEngine(db *gorm.DB, jobs *jobstate.Store, cal clock.Calendar, collector *metrics.Collector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, jobs: jobs, cal: cal, metrics: collector, logger: logger}
}

// Due reports whether today's run has not been recorded yet. It only reads
// the marker (cache first), so a true result is a hint, not a claim.
func (e *Engine) Due(ctx context.Context) (bool, error) {
	last, ok, err := e.jobs.GetLastRun(ctx, JobDailyJournalEntries)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return time.Time(last).Before(time.Time(e.cal.Today())), nil
}

// RunIfNeeded creates today's entry for every career path that lacks one
// and copies updated_at forward from each path's latest active entry.
//
// The day is claimed and the entries written in one transaction, so a
// failed run leaves the marker untouched and the next trigger retries.
// Concurrent callers are safe: exactly one claims the day, the rest return
// a skipped result.
func (e *Engine) RunIfNeeded(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString(), Day: e.cal.Today()}
	logger := e.logger.With("run_id", res.RunID, "job", JobDailyJournalEntries, "day", clock.FormatDay(res.Day))

	due, err := e.Due(ctx)
	if err != nil {
		logger.Warn("Provisioning marker read failed, falling back to claim", "error", err)
		due = true
	}
	if !due {
		res.Skipped = true
		e.metrics.RecordProvision(metrics.OutcomeSkipped, 0, 0, time.Since(start))
		logger.Debug("Provisioning already ran today")
		return res, nil
	}

	if err := e.jobs.Ensure(ctx, JobDailyJournalEntries); err != nil {
		e.metrics.RecordProvision(metrics.OutcomeFailed, 0, 0, time.Since(start))
		return res, err
	}

	now := e.cal.Time().UTC()
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := e.jobs.ClaimRun(ctx, tx, JobDailyJournalEntries, res.Day)
		if err != nil {
			return err
		}
		if !claimed {
			res.Skipped = true
			return nil
		}

		ids, err := insertMissingEntries(ctx, tx, res.Day, now)
		if err != nil {
			return err
		}
		res.Created = int64(len(ids))

		res.Backfilled, err = backfillUpdatedAt(ctx, tx, ids)
		return err
	})
	if err != nil {
		res.Created, res.Backfilled = 0, 0
		e.metrics.RecordProvision(metrics.OutcomeFailed, 0, 0, time.Since(start))
		logger.Error("Provisioning failed", "error", err)
		return res, err
	}

	e.jobs.Remember(ctx, JobDailyJournalEntries, res.Day)

	if res.Skipped {
		e.metrics.RecordProvision(metrics.OutcomeSkipped, 0, 0, time.Since(start))
		logger.Debug("Provisioning claimed by another run")
		return res, nil
	}

	e.metrics.RecordProvision(metrics.OutcomeCompleted, res.Created, res.Backfilled, time.Since(start))
	logger.Info(
		"Provisioning completed",
		"created", res.Created,
		"backfilled", res.Backfilled,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// ProvisionDay creates the entries for a past day that was missed. It
// neither reads nor moves the job marker, so the daily run is unaffected.
// Days after today are rejected.
func (e *Engine) ProvisionDay(ctx context.Context, day datatypes.Date) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString(), Day: day}
	logger := e.logger.With("run_id", res.RunID, "job", JobDailyJournalEntries, "day", clock.FormatDay(day))

	if time.Time(day).After(time.Time(e.cal.Today())) {
		return res, apierr.Invalid("cannot provision %s: day is after today", clock.FormatDay(day))
	}

	now := e.cal.Time().UTC()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := insertMissingEntries(ctx, tx, day, now)
		if err != nil {
			return err
		}
		res.Created = int64(len(ids))

		res.Backfilled, err = backfillUpdatedAt(ctx, tx, ids)
		return err
	})
	if err != nil {
		res.Created, res.Backfilled = 0, 0
		e.metrics.RecordProvision(metrics.OutcomeFailed, 0, 0, time.Since(start))
		logger.Error("Provisioning for past day failed", "error", err)
		return res, err
	}

	e.metrics.RecordProvision(metrics.OutcomeCompleted, res.Created, res.Backfilled, time.Since(start))
	logger.Info("Provisioned past day", "created", res.Created, "backfilled", res.Backfilled)
	return res, nil
}

// insertMissingEntries inserts day's entry for every career path without
// one and returns the new ids. ON CONFLICT covers an entry created by a
// user request between the NOT EXISTS check and the insert.
func insertMissingEntries(ctx context.Context, tx *gorm.DB, day datatypes.Date, now time.Time) ([]uint, error) {
	query := `
INSERT INTO journal_entries (career_path_id, user_id, entry_date, created_at)
SELECT cp.id, cp.user_id, ` + database.Param(tx, "DATE") + `, ` + database.Param(tx, "TIMESTAMPTZ") + `
FROM career_paths cp
WHERE NOT EXISTS (
	SELECT 1 FROM journal_entries je
	WHERE je.career_path_id = cp.id AND je.entry_date = ?
)
ON CONFLICT DO NOTHING
RETURNING id`

	var ids []uint
	if err := tx.WithContext(ctx).Raw(query, day, now, day).Scan(&ids).Error; err != nil {
		return nil, apierr.Persistence("insert daily entries", err)
	}
	return ids, nil
}

// backfillUpdatedAt sets updated_at on the given entries to the updated_at
// of the latest earlier-dated entry of the same career path that has one.
// Entries with no such predecessor keep a null updated_at.
func backfillUpdatedAt(ctx context.Context, tx *gorm.DB, ids []uint) (int64, error) {
	const query = `
UPDATE journal_entries
SET updated_at = (
	SELECT prev.updated_at FROM journal_entries prev
	WHERE prev.career_path_id = journal_entries.career_path_id
	  AND prev.entry_date < journal_entries.entry_date
	  AND prev.updated_at IS NOT NULL
	ORDER BY prev.entry_date DESC
	LIMIT 1
)
WHERE id IN ?
  AND updated_at IS NULL
  AND EXISTS (
	SELECT 1 FROM journal_entries prev
	WHERE prev.career_path_id = journal_entries.career_path_id
	  AND prev.entry_date < journal_entries.entry_date
	  AND prev.updated_at IS NOT NULL
)`

	var total int64
	for len(ids) > 0 {
		n := min(len(ids), backfillBatch)
		res := tx.WithContext(ctx).Exec(query, ids[:n])
		if res.Error != nil {
			return 0, apierr.Persistence("backfill updated_at", res.Error)
		}
		total += res.RowsAffected
		ids = ids[n:]
	}
	return total, nil
}
