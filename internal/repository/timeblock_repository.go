package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"timeblocker/internal/calendar"
	"timeblocker/internal/model"
)

// TimeBlockRepository handles CRUD for time blocks and the overlap rule.
type TimeBlockRepository struct {
	db *gorm.DB
}

func NewTimeBlockRepository(db *gorm.DB) *TimeBlockRepository {
	return &TimeBlockRepository{db: db}
}

// HasOverlap reports whether any block of the user intersects [start, end).
// excludeID, when not empty, skips the block being updated.
func (r *TimeBlockRepository) HasOverlap(ctx context.Context, userID string, start, end time.Time, excludeID string) (bool, error) {
	return hasOverlap(r.db.WithContext(ctx), userID, start, end, excludeID)
}

func hasOverlap(db *gorm.DB, userID string, start, end time.Time, excludeID string) (bool, error) {
	q := db.Model(&model.TimeBlock{}).
		Where("user_id = ? AND start_at < ? AND end_at > ?", userID, end.UTC(), start.UTC())
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return n > 0, nil
}

// lockUser serialises overlap-checked writes of one user for the rest of the transaction.
// SQLite already allows a single writer, so only PostgreSQL needs the advisory lock.
func lockUser(tx *gorm.DB, userID string) error {
	if !isPostgres(tx) {
		return nil
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", userID).Error; err != nil {
		return fmt.Errorf("lock user blocks: %w", err)
	}
	return nil
}

// CreateChecked inserts the block unless it overlaps another block of the same user.
func (r *TimeBlockRepository) CreateChecked(ctx context.Context, block *model.TimeBlock) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, block.UserID); err != nil {
			return err
		}
		overlaps, err := hasOverlap(tx, block.UserID, block.Start, block.End, "")
		if err != nil {
			return err
		}
		if overlaps {
			return ErrOverlap
		}
		if err := tx.Create(block).Error; err != nil {
			return fmt.Errorf("create time block: %w", translate(err))
		}
		return nil
	})
}

// SaveChecked writes the block unless its new interval overlaps another block of the user.
func (r *TimeBlockRepository) SaveChecked(ctx context.Context, block *model.TimeBlock) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, block.UserID); err != nil {
			return err
		}
		overlaps, err := hasOverlap(tx, block.UserID, block.Start, block.End, block.ID)
		if err != nil {
			return err
		}
		if overlaps {
			return ErrOverlap
		}
		if err := tx.Save(block).Error; err != nil {
			return fmt.Errorf("save time block: %w", translate(err))
		}
		return nil
	})
}

func (r *TimeBlockRepository) FindByID(ctx context.Context, userID, blockID string) (*model.TimeBlock, error) {
	var block model.TimeBlock
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, blockID).First(&block).Error; err != nil {
		return nil, fmt.Errorf("find time block: %w", translate(err))
	}
	return &block, nil
}

// ListInWindow returns the user's blocks intersecting the window, ordered by start.
func (r *TimeBlockRepository) ListInWindow(ctx context.Context, userID string, w calendar.Window) ([]model.TimeBlock, error) {
	var blocks []model.TimeBlock
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND start_at < ? AND end_at > ?", userID, w.End.UTC(), w.Start.UTC()).
		Order("start_at ASC").
		Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("list time blocks: %w", err)
	}
	return blocks, nil
}

// CountInWindow counts the user's blocks intersecting the window.
func (r *TimeBlockRepository) CountInWindow(ctx context.Context, userID string, w calendar.Window) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.TimeBlock{}).
		Where("user_id = ? AND start_at < ? AND end_at > ?", userID, w.End.UTC(), w.Start.UTC()).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count time blocks: %w", err)
	}
	return n, nil
}

// ListByTasks returns the user's blocks linked to any of the given tasks.
func (r *TimeBlockRepository) ListByTasks(ctx context.Context, userID string, taskIDs []string) ([]model.TimeBlock, error) {
	var blocks []model.TimeBlock
	if len(taskIDs) == 0 {
		return blocks, nil
	}
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND task_id IN ?", userID, taskIDs).
		Order("start_at ASC").
		Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("list time blocks by task: %w", err)
	}
	return blocks, nil
}

// ListStartingAfter returns blocks of all users starting after t that carry notification settings.
func (r *TimeBlockRepository) ListStartingAfter(ctx context.Context, t time.Time) ([]model.TimeBlock, error) {
	var blocks []model.TimeBlock
	if err := r.db.WithContext(ctx).
		Where("start_at > ? AND notification IS NOT NULL", t.UTC()).
		Order("start_at ASC").
		Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("list upcoming time blocks: %w", err)
	}
	return blocks, nil
}

func (r *TimeBlockRepository) Delete(ctx context.Context, userID, blockID string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, blockID).Delete(&model.TimeBlock{})
	if res.Error != nil {
		return fmt.Errorf("delete time block: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete time block: %w", ErrNotFound)
	}
	return nil
}

// DeleteAllForUser removes every block of the user and returns the removed ids.
func (r *TimeBlockRepository) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	db := r.db.WithContext(ctx)
	var ids []string
	if err := db.Model(&model.TimeBlock{}).Where("user_id = ?", userID).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list time blocks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := db.Where("user_id = ? AND id IN ?", userID, ids).Delete(&model.TimeBlock{}).Error; err != nil {
		return nil, fmt.Errorf("delete time blocks: %w", err)
	}
	return ids, nil
}
