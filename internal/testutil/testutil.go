// Package testutil opens throwaway databases and builds fixtures for
// package tests.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/database"
	"github.com/jimdaga/givethnotes/internal/models"
)

// DB opens a migrated SQLite database in a temp dir. It is closed when the
// test ends.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	db, err := database.Init("sqlite://" + filepath.Join(tb.TempDir(), "test.db"))
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	tb.Cleanup(func() { _ = database.Close(db) })

	if err := database.AutoMigrate(db); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}
	return db
}

// Logger discards everything.
func Logger(tb testing.TB) *slog.Logger {
	tb.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Day parses a YYYY-MM-DD literal.
func Day(tb testing.TB, s string) datatypes.Date {
	tb.Helper()
	d, err := clock.ParseDay(s)
	if err != nil {
		tb.Fatalf("parse day %q: %v", s, err)
	}
	return d
}

// At returns a pointer to the given UTC instant, for UpdatedAt fields.
func At(year int, month time.Month, day, hour, min int) *time.Time {
	t := time.Date(year, month, day, hour, min, 0, 0, time.UTC)
	return &t
}

// User inserts a user with externalID.
func User(tb testing.TB, db *gorm.DB, externalID string) models.User {
	tb.Helper()
	u := models.User{ExternalID: externalID, Email: externalID + "@example.com"}
	if err := db.Create(&u).Error; err != nil {
		tb.Fatalf("create user: %v", err)
	}
	return u
}

// CareerPath inserts a career path owned by userID.
func CareerPath(tb testing.TB, db *gorm.DB, userID uint, title string) models.CareerPath {
	tb.Helper()
	p := models.CareerPath{UserID: userID, Title: title}
	if err := db.Create(&p).Error; err != nil {
		tb.Fatalf("create career path: %v", err)
	}
	return p
}

// Entry inserts path's entry for day with the given updated_at.
func Entry(tb testing.TB, db *gorm.DB, path models.CareerPath, day string, updatedAt *time.Time) models.JournalEntry {
	tb.Helper()
	e := models.JournalEntry{
		CareerPathID: path.ID,
		UserID:       path.UserID,
		EntryDate:    Day(tb, day),
		UpdatedAt:    updatedAt,
	}
	if err := db.Create(&e).Error; err != nil {
		tb.Fatalf("create entry: %v", err)
	}
	return e
}

// Blocks inserts n notes blocks at positions 1..n.
func Blocks(tb testing.TB, db *gorm.DB, entryID uint, n int) []models.EntryBlock {
	tb.Helper()
	blocks := make([]models.EntryBlock, 0, n)
	for i := 1; i <= n; i++ {
		blocks = append(blocks, models.EntryBlock{
			EntryID:  entryID,
			Type:     models.BlockTypeNotes,
			Position: i,
			Content:  datatypes.JSON(`{"text":"block"}`),
		})
	}
	if n > 0 {
		if err := db.Create(&blocks).Error; err != nil {
			tb.Fatalf("create blocks: %v", err)
		}
	}
	return blocks
}
