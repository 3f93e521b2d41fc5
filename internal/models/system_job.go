package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemJob is the persisted marker for a named maintenance job.
// LastRun only ever moves forward.
type SystemJob struct {
	JobName   string          `gorm:"primaryKey;column:job_name"`
	LastRun   *datatypes.Date `gorm:"column:last_run"`
	UpdatedAt time.Time
}
