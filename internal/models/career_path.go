package models

import (
	"time"
)

// CareerPath is a long-running track owned by one user. It accumulates one
// journal entry per calendar day.
type CareerPath struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	User        User      `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Title       string    `gorm:"not null" json:"title"`
	Description *string   `gorm:"type:text" json:"description"`
	ImageURL    *string   `gorm:"column:image_url" json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Entries []JournalEntry `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}
