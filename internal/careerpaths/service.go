// Package careerpaths manages the career paths a user journals against.
package careerpaths

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/models"
)

// Input holds the editable fields of a career path.
type Input struct {
	Title       string
	Description *string
	ImageURL    *string
}

func (in Input) normalize() (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, apierr.Invalid("title is required")
	}
	in.Description = emptyToNil(in.Description)
	in.ImageURL = emptyToNil(in.ImageURL)
	return in, nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// Service manages the caller's career paths.
type Service struct {
	db  *gorm.DB
	cal clock.Calendar
}

// NewService creates a career path service. cal decides the day of the
// entry opened for a new path.
func NewService(db *gorm.DB, cal clock.Calendar) *Service {
	return &Service{db: db, cal: cal}
}

// Create adds a career path together with its entry for today, so blocks
// can be written to it before the next provisioning run.
func (s *Service) Create(ctx context.Context, userID uint, in Input) (*models.CareerPath, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	path := models.CareerPath{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&path).Error; err != nil {
			return apierr.Persistence("create career path", err)
		}

		entry := models.JournalEntry{
			CareerPathID: path.ID,
			UserID:       userID,
			EntryDate:    s.cal.Today(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
			return apierr.Persistence("create first journal entry", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &path, nil
}

// List returns the user's career paths, newest first.
func (s *Service) List(ctx context.Context, userID uint) ([]models.CareerPath, error) {
	var paths []models.CareerPath
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&paths).Error; err != nil {
		return nil, apierr.Persistence("list career paths", err)
	}
	return paths, nil
}

// Get returns the user's career path by id.
func (s *Service) Get(ctx context.Context, userID, id uint) (*models.CareerPath, error) {
	var path models.CareerPath
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&path).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("career path %d: %w", id, apierr.ErrNotFound)
		}
		return nil, apierr.Persistence("get career path", err)
	}
	return &path, nil
}

// Update replaces all editable fields.
func (s *Service) Update(ctx context.Context, userID, id uint, in Input) (*models.CareerPath, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).
		Model(&models.CareerPath{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"title":       in.Title,
			"description": in.Description,
			"image_url":   in.ImageURL,
			"updated_at":  s.cal.Time().UTC(),
		})
	if res.Error != nil {
		return nil, apierr.Persistence("update career path", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("career path %d: %w", id, apierr.ErrNotFound)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes a career path with all of its entries and their blocks.
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lock(tx, userID, id); err != nil {
			return err
		}

		entries := tx.Model(&models.JournalEntry{}).Select("id").Where("career_path_id = ?", id)
		if err := tx.Where("entry_id IN (?)", entries).Delete(&models.EntryBlock{}).Error; err != nil {
			return apierr.Persistence("delete career path blocks", err)
		}
		if err := tx.Where("career_path_id = ?", id).Delete(&models.JournalEntry{}).Error; err != nil {
			return apierr.Persistence("delete career path entries", err)
		}
		if err := tx.Delete(&models.CareerPath{}, id).Error; err != nil {
			return apierr.Persistence("delete career path", err)
		}
		return nil
	})
}

func (s *Service) lock(tx *gorm.DB, userID, id uint) (*models.CareerPath, error) {
	var path models.CareerPath
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&path).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("career path %d: %w", id, apierr.ErrNotFound)
		}
		return nil, apierr.Persistence("lock career path", err)
	}
	return &path, nil
}
