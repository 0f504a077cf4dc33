package model

import (
	"errors"
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusScheduled  TaskStatus = "SCHEDULED"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusScheduled, TaskStatusCompleted:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

func (p TaskPriority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities, HIGH being the largest. Unknown values rank 0.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

type RecurrenceType string

const (
	RecurDaily    RecurrenceType = "DAILY"
	RecurWeekly   RecurrenceType = "WEEKLY"
	RecurBiweekly RecurrenceType = "BIWEEKLY"
	RecurMonthly  RecurrenceType = "MONTHLY"
	RecurYearly   RecurrenceType = "YEARLY"
)

func (r RecurrenceType) Valid() bool {
	switch r {
	case RecurDaily, RecurWeekly, RecurBiweekly, RecurMonthly, RecurYearly:
		return true
	}
	return false
}

// Recurrence describes how a task repeats. It is stored as-is and not expanded.
type Recurrence struct {
	Type       RecurrenceType `json:"type"`
	Interval   int            `json:"interval"`
	EndDate    *time.Time     `json:"endDate,omitempty"`
	DaysOfWeek []int          `json:"daysOfWeek,omitempty"` // 0 = Sunday
	DayOfMonth *int           `json:"dayOfMonth,omitempty"`
}

func (r Recurrence) Validate() error {
	var errs []error
	if !r.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown recurrence type %q", r.Type))
	}
	if r.Interval < 1 {
		errs = append(errs, errors.New("recurrence interval must be at least 1"))
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			errs = append(errs, fmt.Errorf("day of week %d out of range 0-6", d))
		}
	}
	if r.DayOfMonth != nil && (*r.DayOfMonth < 1 || *r.DayOfMonth > 31) {
		errs = append(errs, fmt.Errorf("day of month %d out of range 1-31", *r.DayOfMonth))
	}
	return errors.Join(errs...)
}
