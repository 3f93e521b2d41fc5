package models

import (
	"time"

	"gorm.io/datatypes"
)

// JournalEntry records a single calendar day of a career path.
//
// At most one entry exists per (career_path_id, entry_date). UpdatedAt stays
// nil until the entry's content is edited or the provisioning job copies the
// last known activity time forward from an earlier entry.
type JournalEntry struct {
	ID           uint           `gorm:"primaryKey"`
	CareerPathID uint           `gorm:"not null;uniqueIndex:idx_journal_entries_path_date,priority:1"`
	CareerPath   CareerPath     `gorm:"constraint:OnDelete:CASCADE;"`
	UserID       uint           `gorm:"not null;index"`
	EntryDate    datatypes.Date `gorm:"not null;uniqueIndex:idx_journal_entries_path_date,priority:2"`
	CreatedAt    time.Time
	UpdatedAt    *time.Time `gorm:"autoUpdateTime:false"`

	Blocks []EntryBlock `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE;"`
}
