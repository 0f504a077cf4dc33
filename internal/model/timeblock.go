package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"timeblocker/internal/calendar"
)

// NotificationSettings controls the reminder sent ahead of a block.
// MinutesBefore 0 means at start time.
type NotificationSettings struct {
	Enabled       bool `json:"enabled"`
	MinutesBefore int  `json:"minutesBefore,omitempty"`
}

// TimeBlock is a scheduled interval [Start, End) of a user's day.
type TimeBlock struct {
	ID           string                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string                `gorm:"type:varchar(36);not null;index:idx_time_block_user_window,priority:1" json:"userId"`
	TaskID       *string               `gorm:"type:varchar(36);index" json:"taskId,omitempty"`
	Title        string                `gorm:"not null" json:"title"`
	Start        time.Time             `gorm:"column:start_at;not null;index:idx_time_block_user_window,priority:2" json:"start"`
	End          time.Time             `gorm:"column:end_at;not null;index:idx_time_block_user_window,priority:3" json:"end"`
	ActualEnd    *time.Time            `json:"actualEnd,omitempty"`
	Category     *string               `json:"category,omitempty"`
	Notes        *string               `gorm:"type:text" json:"notes,omitempty"`
	Notification *NotificationSettings `gorm:"serializer:json;type:jsonb" json:"notification,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`

	Task *TaskSummary `gorm:"-" json:"task,omitempty"`
}

func (b *TimeBlock) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Span converts the block for worked-time arithmetic.
func (b TimeBlock) Span() calendar.Span {
	return calendar.Span{Start: b.Start, End: b.End, ActualEnd: b.ActualEnd}
}

// NotifyAt returns when the block's reminder is due, or false when reminders are off.
func (b TimeBlock) NotifyAt() (time.Time, bool) {
	if b.Notification == nil || !b.Notification.Enabled {
		return time.Time{}, false
	}
	return b.Start.Add(-time.Duration(b.Notification.MinutesBefore) * time.Minute), true
}
