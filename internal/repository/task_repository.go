package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"timeblocker/internal/model"
)

// TaskFilter narrows a task listing. Nil fields do not filter.
type TaskFilter struct {
	Status   *model.TaskStatus
	Priority *model.TaskPriority
	// RootsOnly restricts to tasks without a parent; it wins over ParentID.
	RootsOnly bool
	ParentID  *string
}

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", translate(err))
	}
	return nil
}

// CreateBatch inserts tasks in one statement, in order.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []*model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(tasks).Error; err != nil {
		return fmt.Errorf("create tasks: %w", translate(err))
	}
	return nil
}

const priorityOrder = "CASE priority WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 WHEN 'LOW' THEN 1 ELSE 0 END DESC"

// List returns the user's tasks, highest priority first, newest first within a priority.
func (r *TaskRepository) List(ctx context.Context, userID string, f TaskFilter) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", *f.Priority)
	}
	switch {
	case f.RootsOnly:
		q = q.Where("parent_task_id IS NULL")
	case f.ParentID != nil:
		q = q.Where("parent_task_id = ?", *f.ParentID)
	}

	var tasks []model.Task
	if err := q.Order(priorityOrder).Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, fmt.Errorf("find task: %w", translate(err))
	}
	return &task, nil
}

func (r *TaskRepository) ListByIDs(ctx context.Context, userID string, ids []string) ([]model.Task, error) {
	var tasks []model.Task
	if len(ids) == 0 {
		return tasks, nil
	}
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", translate(err))
	}
	return nil
}

// ParentLink is one edge of the task tree.
type ParentLink struct {
	ID           string
	ParentTaskID *string
}

// ParentLinks returns every (task, parent) edge of the user's task tree.
func (r *TaskRepository) ParentLinks(ctx context.Context, userID string) ([]ParentLink, error) {
	var links []ParentLink
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("id", "parent_task_id").
		Where("user_id = ?", userID).
		Scan(&links).Error; err != nil {
		return nil, fmt.Errorf("list task links: %w", err)
	}
	return links, nil
}

// CountOpen counts tasks that are not completed.
func (r *TaskRepository) CountOpen(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND status <> ?", userID, model.TaskStatusCompleted).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// Delete removes a task after detaching its children and time blocks, all in one transaction.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task model.Task
		if err := tx.Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
			return fmt.Errorf("find task: %w", translate(err))
		}
		if err := tx.Model(&model.Task{}).
			Where("user_id = ? AND parent_task_id = ?", userID, taskID).
			Update("parent_task_id", nil).Error; err != nil {
			return fmt.Errorf("detach subtasks: %w", err)
		}
		if err := tx.Model(&model.TimeBlock{}).
			Where("user_id = ? AND task_id = ?", userID, taskID).
			Update("task_id", nil).Error; err != nil {
			return fmt.Errorf("detach time blocks: %w", err)
		}
		if err := tx.Delete(&task).Error; err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// DeleteAllForUser removes every task of the user. Time blocks must be removed first.
func (r *TaskRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	return nil
}
