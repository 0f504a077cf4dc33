package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"timeblocker/internal/model"
)

// CategoryRepository reads the free-form categories stored on tasks and time blocks.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ListByUser returns the distinct non-empty categories of the user's tasks
// followed by those of the user's blocks. Names may repeat across the two.
func (r *CategoryRepository) ListByUser(ctx context.Context, userID string) ([]string, error) {
	fromTasks, err := r.pluck(ctx, &model.Task{}, userID)
	if err != nil {
		return nil, fmt.Errorf("list task categories: %w", err)
	}
	fromBlocks, err := r.pluck(ctx, &model.TimeBlock{}, userID)
	if err != nil {
		return nil, fmt.Errorf("list time block categories: %w", err)
	}
	return append(fromTasks, fromBlocks...), nil
}

func (r *CategoryRepository) pluck(ctx context.Context, table any, userID string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(table).
		Distinct("category").
		Where("user_id = ? AND category IS NOT NULL AND category <> ''", userID).
		Pluck("category", &names).Error
	return names, err
}
