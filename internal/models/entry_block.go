package models

import (
	"time"

	"gorm.io/datatypes"
)

// Block type constants
const (
	BlockTypeHeading    = "heading"
	BlockTypeNotes      = "notes"
	BlockTypePoints     = "points"
	BlockTypeAttachment = "attachment"
	BlockTypeReference  = "reference"
)

// BlockTypes lists every accepted block type.
var BlockTypes = []string{
	BlockTypeHeading,
	BlockTypeNotes,
	BlockTypePoints,
	BlockTypeAttachment,
	BlockTypeReference,
}

// EntryBlock is one piece of structured content inside a journal entry.
// Positions for an entry always form the dense sequence 1..N.
type EntryBlock struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EntryID   uint           `gorm:"not null;uniqueIndex:idx_entry_blocks_entry_position,priority:1" json:"entry_id"`
	Type      string         `gorm:"not null" json:"type"`
	Position  int            `gorm:"not null;uniqueIndex:idx_entry_blocks_entry_position,priority:2" json:"position"`
	Content   datatypes.JSON `gorm:"type:jsonb;not null" json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `gorm:"autoUpdateTime:false" json:"updated_at"`
}
