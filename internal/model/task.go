package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task is a unit of work. Tasks form a tree through ParentTaskID.
type Task struct {
	ID               string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID           string       `gorm:"type:varchar(36);index;not null" json:"userId"`
	ParentTaskID     *string      `gorm:"type:varchar(36);index" json:"parentTaskId,omitempty"`
	Title            string       `gorm:"not null" json:"title"`
	Notes            *string      `gorm:"type:text" json:"notes,omitempty"`
	Status           TaskStatus   `gorm:"type:varchar(16);not null;default:PENDING" json:"status"`
	Priority         TaskPriority `gorm:"type:varchar(16);not null;default:MEDIUM" json:"priority"`
	Category         *string      `json:"category,omitempty"`
	Deadline         *time.Time   `json:"deadline,omitempty"`
	EstimatedMinutes *int         `json:"estimatedMinutes,omitempty"`
	Recurrence       *Recurrence  `gorm:"serializer:json;type:jsonb" json:"recurrence,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`

	// Derived on read.
	SubtaskIDs         []string `gorm:"-" json:"subtaskIds"`
	TotalMinutesWorked int      `gorm:"-" json:"totalMinutesWorked"`
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Summary is the compact form embedded in time blocks.
func (t *Task) Summary() *TaskSummary {
	if t == nil {
		return nil
	}
	return &TaskSummary{ID: t.ID, Title: t.Title, Status: t.Status}
}

// TaskSummary identifies the task a time block works on.
type TaskSummary struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status TaskStatus `json:"status"`
}
