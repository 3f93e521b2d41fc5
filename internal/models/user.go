package models

import (
	"time"
)

// User represents an account resolved from an external identity provider
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID string    `gorm:"uniqueIndex;not null" json:"-"` // "sub" claim of the verified token
	Email      string    `gorm:"not null;default:''" json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Associations
	CareerPaths []CareerPath `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}
