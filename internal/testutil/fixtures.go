package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"timeblocker/internal/model"
)

// UserOption customises a fixture user.
type UserOption func(*model.User)

func WithTimezone(tz string) UserOption {
	return func(u *model.User) { u.Timezone = tz }
}

func WithPlanningTime(hhmm string) UserOption {
	return func(u *model.User) { u.DailyPlanningTime = &hhmm }
}

func WithTelegramChat(id int64) UserOption {
	return func(u *model.User) { u.TelegramChatID = &id }
}

// CreateUser inserts a user with a unique email.
func CreateUser(t *testing.T, db *gorm.DB, opts ...UserOption) *model.User {
	t.Helper()
	u := &model.User{
		Email:        uuid.NewString()[:8] + "@example.com",
		PasswordHash: "x",
		Timezone:     "UTC",
	}
	for _, opt := range opts {
		opt(u)
	}
	if err := db.WithContext(context.Background()).Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateTask inserts a task for the user.
func CreateTask(t *testing.T, db *gorm.DB, userID, title string, parentID *string) *model.Task {
	t.Helper()
	task := &model.Task{
		UserID:       userID,
		Title:        title,
		Status:       model.TaskStatusPending,
		Priority:     model.PriorityMedium,
		ParentTaskID: parentID,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

// CreateBlock inserts a block without the overlap check.
func CreateBlock(t *testing.T, db *gorm.DB, userID string, start, end time.Time, taskID *string) *model.TimeBlock {
	t.Helper()
	block := &model.TimeBlock{
		UserID: userID,
		TaskID: taskID,
		Title:  "block",
		Start:  start.UTC(),
		End:    end.UTC(),
	}
	if err := db.Create(block).Error; err != nil {
		t.Fatalf("create time block: %v", err)
	}
	return block
}

// Time parses an RFC 3339 instant or fails the test.
func Time(t *testing.T, raw string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("parse time %q: %v", raw, err)
	}
	return v.UTC()
}
