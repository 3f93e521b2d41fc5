package jobstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/models"
)

// Cache is an optional read-through cache of last-run days, keyed by job
// name. The database stays authoritative.
type Cache interface {
	Get(ctx context.Context, job string) (string, bool, error)
	Set(ctx context.Context, job, day string) error
}

// Store persists one marker row per named job recording the last calendar
// day the job completed.
//
// GetLastRun followed by SetLastRun is not atomic. Callers that need mutual
// exclusion use ClaimRun inside their own transaction.
type Store struct {
	db     *gorm.DB
	cache  Cache
	logger *slog.Logger
}

// NewStore creates a job state store. cache may be nil.
func NewStore(db *gorm.DB, cache Cache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, cache: cache, logger: logger}
}

// GetLastRun returns the last completed day for job. ok is false when the
// job has never completed.
func (s *Store) GetLastRun(ctx context.Context, job string) (day datatypes.Date, ok bool, err error) {
	if s.cache != nil {
		cached, hit, cerr := s.cache.Get(ctx, job)
		if cerr != nil {
			s.logger.Warn("Job state cache read failed", "job", job, "error", cerr)
		} else if hit {
			if parsed, perr := clock.ParseDay(cached); perr == nil {
				return parsed, true, nil
			}
		}
	}

	var row models.SystemJob
	err = s.db.WithContext(ctx).Where("job_name = ?", job).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return datatypes.Date{}, false, nil
		}
		return datatypes.Date{}, false, apierr.Persistence("read job marker", err)
	}
	if row.LastRun == nil {
		return datatypes.Date{}, false, nil
	}

	s.Remember(ctx, job, *row.LastRun)
	return *row.LastRun, true, nil
}

// SetLastRun records day as the last completed run of job. The marker never
// moves backwards: an older day than the stored one is ignored.
func (s *Store) SetLastRun(ctx context.Context, job string, day datatypes.Date) error {
	if err := s.Ensure(ctx, job); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.ClaimRun(ctx, tx, job, day)
		return err
	})
	if err != nil {
		return err
	}
	s.Remember(ctx, job, day)
	return nil
}

// Ensure creates the marker row for job if it does not exist yet.
func (s *Store) Ensure(ctx context.Context, job string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SystemJob{JobName: job}).Error
	if err != nil {
		return apierr.Persistence("create job marker", err)
	}
	return nil
}

// ClaimRun advances job's marker to day inside tx, compare-and-swap style.
// It returns true only for the caller whose update moved the marker; every
// other caller, including ones racing on the same day, gets false. The
// marker row must exist (see Ensure).
//
// On Postgres the UPDATE takes the row lock, so a concurrent claimer blocks
// until the winner's transaction ends and then re-evaluates the predicate.
func (s *Store) ClaimRun(ctx context.Context, tx *gorm.DB, job string, day datatypes.Date) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.SystemJob{}).
		Where("job_name = ? AND (last_run IS NULL OR last_run < ?)", job, day).
		Updates(map[string]interface{}{
			"last_run":   day,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, apierr.Persistence("claim job marker", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Remember stores day in the cache. Failures are logged and ignored.
func (s *Store) Remember(ctx context.Context, job string, day datatypes.Date) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, job, clock.FormatDay(day)); err != nil {
		s.logger.Warn("Job state cache write failed", "job", job, "error", err)
	}
}

// Describe renders the marker for logs and CLI output.
func Describe(day datatypes.Date, ok bool) string {
	if !ok {
		return "never"
	}
	return fmt.Sprintf("last run %s", clock.FormatDay(day))
}
