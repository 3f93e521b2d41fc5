package database

import (
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/models"
)

// DevUserExternalID is the identity subject of the seeded development user.
const DevUserExternalID = "dev-user"

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB, cal clock.Calendar) error {
	var existingUser models.User
	result := db.Where("external_id = ?", DevUserExternalID).First(&existingUser)
	if result.Error == nil {
		slog.Info("Seed data already exists, skipping")
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		user := models.User{
			ExternalID: DevUserExternalID,
			Email:      "dev@givethnotes.local",
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		description := "Moving from backend engineering into platform work"
		path := models.CareerPath{
			UserID:      user.ID,
			Title:       "Platform Engineering",
			Description: &description,
		}
		if err := tx.Create(&path).Error; err != nil {
			return err
		}

		// Two days ago has activity, yesterday was left untouched. The next
		// provisioning run backfills today's entry from two days ago.
		today := time.Time(cal.Today())
		active := time.Date(today.Year(), today.Month(), today.Day()-2, 18, 30, 0, 0, time.UTC)
		entries := []models.JournalEntry{
			{CareerPathID: path.ID, UserID: user.ID, EntryDate: clock.DayOf(today.AddDate(0, 0, -2)), UpdatedAt: &active},
			{CareerPathID: path.ID, UserID: user.ID, EntryDate: clock.DayOf(today.AddDate(0, 0, -1))},
		}
		if err := tx.Create(&entries).Error; err != nil {
			return err
		}

		blocks := []models.EntryBlock{
			{EntryID: entries[0].ID, Type: models.BlockTypeHeading, Position: 1, Content: datatypes.JSON(`{"text":"Kubernetes operators","level":1}`)},
			{EntryID: entries[0].ID, Type: models.BlockTypeNotes, Position: 2, Content: datatypes.JSON(`{"text":"Read the controller-runtime book, chapters 1-3."}`)},
			{EntryID: entries[0].ID, Type: models.BlockTypePoints, Position: 3, Content: datatypes.JSON(`{"items":["reconcile loops","finalizers","status subresource"]}`)},
		}
		if err := tx.Create(&blocks).Error; err != nil {
			return err
		}

		slog.Info("Seeded dev data: 1 user, 1 career path, 2 journal entries, 3 blocks")
		return nil
	})
}
