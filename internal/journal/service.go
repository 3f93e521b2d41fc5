package journal

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/models"
)

// Service resolves and manages journal entries for a user.
type Service struct {
	db  *gorm.DB
	cal clock.Calendar
}

// NewService creates a journal entry service.
func NewService(db *gorm.DB, cal clock.Calendar) *Service {
	return &Service{db: db, cal: cal}
}

// CurrentEntryFor returns the latest journal entry of a career path, ordered
// by (entry_date, created_at). New blocks attach to this entry whether or not
// it is dated today.
func (s *Service) CurrentEntryFor(ctx context.Context, careerPathID, userID uint) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	err := s.db.WithContext(ctx).
		Where("career_path_id = ? AND user_id = ?", careerPathID, userID).
		Order("entry_date DESC").
		Order("created_at DESC").
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no journal entry for career path %d: %w", careerPathID, apierr.ErrNotFound)
		}
		return nil, apierr.Persistence("lookup current entry", err)
	}
	return &entry, nil
}

// Create adds an entry for an explicit date. A second entry for the same
// career path and date fails with ErrConflict.
func (s *Service) Create(ctx context.Context, userID, careerPathID uint, day datatypes.Date) (*models.JournalEntry, error) {
	if err := s.ensureCareerPath(ctx, userID, careerPathID); err != nil {
		return nil, err
	}

	entry := models.JournalEntry{
		CareerPathID: careerPathID,
		UserID:       userID,
		EntryDate:    day,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("entry for %s already exists for this career path: %w", clock.FormatDay(day), apierr.ErrConflict)
		}
		return nil, apierr.Persistence("create journal entry", err)
	}
	return &entry, nil
}

// ListByCareerPath returns a career path's entries, newest first.
func (s *Service) ListByCareerPath(ctx context.Context, userID, careerPathID uint) ([]models.JournalEntry, error) {
	var entries []models.JournalEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND career_path_id = ?", userID, careerPathID).
		Order("entry_date DESC").
		Find(&entries).Error; err != nil {
		return nil, apierr.Persistence("list journal entries", err)
	}
	return entries, nil
}

// Get returns one entry owned by userID.
func (s *Service) Get(ctx context.Context, userID, entryID uint) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", entryID, userID).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("journal entry %d: %w", entryID, apierr.ErrNotFound)
		}
		return nil, apierr.Persistence("get journal entry", err)
	}
	return &entry, nil
}

// UpdateDate moves an entry to another day. Counts as an edit, so updated_at
// is set.
func (s *Service) UpdateDate(ctx context.Context, userID, entryID uint, day datatypes.Date) (*models.JournalEntry, error) {
	now := s.cal.Time().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.JournalEntry{}).
		Where("id = ? AND user_id = ?", entryID, userID).
		Updates(map[string]interface{}{
			"entry_date": day,
			"updated_at": now,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("entry for %s already exists for this career path: %w", clock.FormatDay(day), apierr.ErrConflict)
		}
		return nil, apierr.Persistence("update journal entry", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("journal entry %d: %w", entryID, apierr.ErrNotFound)
	}
	return s.Get(ctx, userID, entryID)
}

// Delete removes an entry together with its blocks.
func (s *Service) Delete(ctx context.Context, userID, entryID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&models.JournalEntry{}).Select("id").Where("id = ? AND user_id = ?", entryID, userID)
		if err := tx.Where("entry_id IN (?)", owned).Delete(&models.EntryBlock{}).Error; err != nil {
			return apierr.Persistence("delete entry blocks", err)
		}

		res := tx.Where("id = ? AND user_id = ?", entryID, userID).Delete(&models.JournalEntry{})
		if res.Error != nil {
			return apierr.Persistence("delete journal entry", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("journal entry %d: %w", entryID, apierr.ErrNotFound)
		}
		return nil
	})
}

func (s *Service) ensureCareerPath(ctx context.Context, userID, careerPathID uint) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.CareerPath{}).
		Where("id = ? AND user_id = ?", careerPathID, userID).
		Count(&count).Error; err != nil {
		return apierr.Persistence("check career path", err)
	}
	if count == 0 {
		return fmt.Errorf("career path %d: %w", careerPathID, apierr.ErrNotFound)
	}
	return nil
}
