// Package blocks stores the ordered content blocks of a journal entry.
//
// The positions of an entry's blocks always form the dense sequence 1..N.
// Every mutation runs in a transaction that first locks the parent entry
// row, so mutations of one entry are serialized and a failed remove never
// leaves a gap behind.
package blocks

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
	"github.com/jimdaga/givethnotes/internal/metrics"
	"github.com/jimdaga/givethnotes/internal/models"
)

// ErrGap reports an entry whose block positions are not exactly 1..N.
var ErrGap = errors.New("block positions are not contiguous")

// Mutation names used for metrics.
const (
	opAppend = "append"
	opUpdate = "update"
	opRemove = "remove"
)

// NewBlock is the input of Append.
type NewBlock struct {
	Type    string
	Content datatypes.JSON
}

// EntryLookup resolves the entry that new blocks of a career path go to.
type EntryLookup interface {
	CurrentEntryFor(ctx context.Context, careerPathID, userID uint) (*models.JournalEntry, error)
}

// ReconcileResult summarises one Reconcile pass.
type ReconcileResult struct {
	Checked  int
	Repaired []uint
}

// Store manages entry blocks.
type Store struct {
	db        *gorm.DB
	entries   EntryLookup
	validator *Validator
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates a block store. validator and collector may be nil; a nil
// validator accepts any known block type with any JSON content.
func NewStore(db *gorm.DB, entries EntryLookup, validator *Validator, collector *metrics.Collector, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:        db,
		entries:   entries,
		validator: validator,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Append adds a block after the last one of the entry.
func (s *Store) Append(ctx context.Context, userID, entryID uint, in NewBlock) (*models.EntryBlock, error) {
	if err := s.validate(in.Type, in.Content); err != nil {
		return nil, err
	}

	var block models.EntryBlock
	err := s.mutate(ctx, userID, entryID, func(tx *gorm.DB, now time.Time) error {
		var last int
		if err := tx.Model(&models.EntryBlock{}).
			Where("entry_id = ?", entryID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&last).Error; err != nil {
			return apierr.Persistence("read last block position", err)
		}

		block = models.EntryBlock{
			EntryID:  entryID,
			Type:     in.Type,
			Position: last + 1,
			Content:  in.Content,
		}
		if err := tx.Create(&block).Error; err != nil {
			return apierr.Persistence("insert block", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBlockMutation(opAppend)
	return &block, nil
}

// AppendToCareerPath appends to the career path's current entry, whatever
// day that entry is for.
func (s *Store) AppendToCareerPath(ctx context.Context, userID, careerPathID uint, in NewBlock) (*models.EntryBlock, error) {
	if s.entries == nil {
		return nil, fmt.Errorf("blocks: no entry lookup configured")
	}
	entry, err := s.entries.CurrentEntryFor(ctx, careerPathID, userID)
	if err != nil {
		return nil, err
	}
	return s.Append(ctx, userID, entry.ID, in)
}

// List returns the entry's blocks in position order.
func (s *Store) List(ctx context.Context, userID, entryID uint) ([]models.EntryBlock, error) {
	db := s.db.WithContext(ctx)
	if err := ownedEntry(db, userID, entryID); err != nil {
		return nil, err
	}

	var blocks []models.EntryBlock
	if err := db.Where("entry_id = ?", entryID).Order("position ASC").Find(&blocks).Error; err != nil {
		return nil, apierr.Persistence("list blocks", err)
	}
	return blocks, nil
}

// Update replaces the content of the block at position. The block keeps its
// type and position.
func (s *Store) Update(ctx context.Context, userID, entryID uint, position int, content datatypes.JSON) (*models.EntryBlock, error) {
	var block models.EntryBlock
	err := s.mutate(ctx, userID, entryID, func(tx *gorm.DB, now time.Time) error {
		if err := blockAt(tx, entryID, position, &block); err != nil {
			return err
		}
		if err := s.validate(block.Type, content); err != nil {
			return err
		}

		if err := tx.Model(&block).Updates(map[string]interface{}{
			"content":    content,
			"updated_at": now,
		}).Error; err != nil {
			return apierr.Persistence("update block", err)
		}
		block.Content = content
		block.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBlockMutation(opUpdate)
	return &block, nil
}

// Remove deletes the block at position and moves every later block up by
// one. The delete and the shift commit together.
func (s *Store) Remove(ctx context.Context, userID, entryID uint, position int) error {
	err := s.mutate(ctx, userID, entryID, func(tx *gorm.DB, now time.Time) error {
		res := tx.Where("entry_id = ? AND position = ?", entryID, position).Delete(&models.EntryBlock{})
		if res.Error != nil {
			return apierr.Persistence("delete block", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("no block at position %d: %w", position, apierr.ErrNotFound)
		}

		// Shifted rows pass through negative positions so the unique
		// (entry_id, position) index never sees two rows on one slot.
		if err := tx.Exec(
			"UPDATE entry_blocks SET position = -(position - 1) WHERE entry_id = ? AND position > ?",
			entryID, position,
		).Error; err != nil {
			return apierr.Persistence("shift blocks", err)
		}
		if err := tx.Exec(
			"UPDATE entry_blocks SET position = -position WHERE entry_id = ? AND position < 0",
			entryID,
		).Error; err != nil {
			return apierr.Persistence("shift blocks", err)
		}

		if err := checkContiguity(tx, entryID); err != nil {
			if !errors.Is(err, ErrGap) {
				return err
			}
			s.metrics.RecordContiguityViolations(1)
			s.logger.Error("Block positions not contiguous after remove", "entry_id", entryID, "error", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordBlockMutation(opRemove)
	return nil
}

// CheckContiguity returns an error wrapping ErrGap when the entry's block
// positions are not exactly 1..N.
func (s *Store) CheckContiguity(ctx context.Context, entryID uint) error {
	return checkContiguity(s.db.WithContext(ctx), entryID)
}

// Reconcile rewrites the positions of every entry whose blocks are not
// contiguous to 1..N, keeping their relative order.
func (s *Store) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	db := s.db.WithContext(ctx)

	var checked int64
	if err := db.Model(&models.EntryBlock{}).Distinct("entry_id").Count(&checked).Error; err != nil {
		return result, apierr.Persistence("count block entries", err)
	}
	result.Checked = int(checked)

	var broken []uint
	if err := db.Model(&models.EntryBlock{}).
		Select("entry_id").
		Group("entry_id").
		Having("MIN(position) <> 1 OR MAX(position) <> COUNT(*)").
		Pluck("entry_id", &broken).Error; err != nil {
		return result, apierr.Persistence("find non-contiguous entries", err)
	}

	s.metrics.RecordContiguityViolations(len(broken))
	for _, entryID := range broken {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.resequence(ctx, entryID); err != nil {
			return result, err
		}
		result.Repaired = append(result.Repaired, entryID)
		s.logger.Warn("Resequenced block positions", "entry_id", entryID)
	}
	s.metrics.RecordReconciled(len(result.Repaired))
	return result, nil
}

func (s *Store) resequence(ctx context.Context, entryID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEntry(tx, entryID); err != nil {
			return err
		}

		var blocks []models.EntryBlock
		if err := tx.Select("id", "position").
			Where("entry_id = ?", entryID).
			Order("position ASC").Order("id ASC").
			Find(&blocks).Error; err != nil {
			return apierr.Persistence("load blocks", err)
		}

		if err := tx.Exec(
			"UPDATE entry_blocks SET position = -id WHERE entry_id = ?", entryID,
		).Error; err != nil {
			return apierr.Persistence("park block positions", err)
		}
		for i, b := range blocks {
			if err := tx.Model(&models.EntryBlock{}).
				Where("id = ?", b.ID).
				Update("position", i+1).Error; err != nil {
				return apierr.Persistence("renumber block", err)
			}
		}
		return nil
	})
}

// mutate runs fn in a transaction holding the lock on the user's entry and
// then marks the entry as edited.
func (s *Store) mutate(ctx context.Context, userID, entryID uint, fn func(tx *gorm.DB, now time.Time) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEntry(tx.Where("user_id = ?", userID), entryID); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := fn(tx, now); err != nil {
			return err
		}

		if err := tx.Model(&models.JournalEntry{}).
			Where("id = ?", entryID).
			Update("updated_at", now).Error; err != nil {
			return apierr.Persistence("touch journal entry", err)
		}
		return nil
	})
}

func (s *Store) validate(blockType string, content datatypes.JSON) error {
	if s.validator != nil {
		return s.validator.Validate(blockType, content)
	}
	for _, t := range models.BlockTypes {
		if t == blockType {
			return nil
		}
	}
	return apierr.Invalid("invalid block type %q", blockType)
}

// lockEntry takes the row lock on the entry. SQLite has no row locks and
// serializes writers instead.
func lockEntry(tx *gorm.DB, entryID uint) error {
	var entry models.JournalEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", entryID).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("journal entry %d: %w", entryID, apierr.ErrNotFound)
		}
		return apierr.Persistence("lock journal entry", err)
	}
	return nil
}

func ownedEntry(db *gorm.DB, userID, entryID uint) error {
	var n int64
	if err := db.Model(&models.JournalEntry{}).Where("id = ? AND user_id = ?", entryID, userID).Count(&n).Error; err != nil {
		return apierr.Persistence("lookup journal entry", err)
	}
	if n == 0 {
		return fmt.Errorf("journal entry %d: %w", entryID, apierr.ErrNotFound)
	}
	return nil
}

func blockAt(tx *gorm.DB, entryID uint, position int, block *models.EntryBlock) error {
	err := tx.Where("entry_id = ? AND position = ?", entryID, position).Take(block).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no block at position %d: %w", position, apierr.ErrNotFound)
		}
		return apierr.Persistence("load block", err)
	}
	return nil
}

func checkContiguity(db *gorm.DB, entryID uint) error {
	var positions []int
	if err := db.Model(&models.EntryBlock{}).
		Where("entry_id = ?", entryID).
		Order("position ASC").
		Pluck("position", &positions).Error; err != nil {
		return apierr.Persistence("read block positions", err)
	}
	for i, p := range positions {
		if p != i+1 {
			return fmt.Errorf("entry %d: expected position %d, found %d: %w", entryID, i+1, p, ErrGap)
		}
	}
	return nil
}
