package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"timeblocker/internal/calendar"
	"timeblocker/internal/model"
	"timeblocker/internal/repository"
)

// TimeBlockInput represents data required to create a time block.
type TimeBlockInput struct {
	Title        string                      `json:"title" validate:"required"`
	Start        *time.Time                  `json:"start" validate:"required"`
	End          *time.Time                  `json:"end" validate:"required"`
	TaskID       *string                     `json:"taskId" validate:"omitempty,uuid"`
	Category     *string                     `json:"category"`
	Notes        *string                     `json:"notes"`
	Notification *model.NotificationSettings `json:"notification"`
}

// TimeBlockPatch is a partial update. Null clears nullable fields.
type TimeBlockPatch struct {
	Title        Optional[string]                     `json:"title"`
	Start        Optional[time.Time]                  `json:"start"`
	End          Optional[time.Time]                  `json:"end"`
	ActualEnd    Optional[time.Time]                  `json:"actualEnd"`
	TaskID       Optional[string]                     `json:"taskId"`
	Category     Optional[string]                     `json:"category"`
	Notes        Optional[string]                     `json:"notes"`
	Notification Optional[model.NotificationSettings] `json:"notification"`
}

// BlockReminders arms and disarms the reminder of a block.
type BlockReminders interface {
	ScheduleBlock(ctx context.Context, block model.TimeBlock)
	CancelBlock(blockID string)
}

// TimeBlockService wraps the day grid: day views and overlap-free block writes.
type TimeBlockService struct {
	blockRepo *repository.TimeBlockRepository
	taskRepo  *repository.TaskRepository
	userRepo  *repository.UserRepository
	reminders BlockReminders
}

func NewTimeBlockService(blockRepo *repository.TimeBlockRepository, taskRepo *repository.TaskRepository,
	userRepo *repository.UserRepository, reminders BlockReminders) *TimeBlockService {
	if reminders == nil {
		reminders = noReminders{}
	}
	return &TimeBlockService{blockRepo: blockRepo, taskRepo: taskRepo, userRepo: userRepo, reminders: reminders}
}

// DayView returns the blocks visible on the given local date of the user, ordered by start.
func (s *TimeBlockService) DayView(ctx context.Context, userID, date string) ([]model.TimeBlock, error) {
	if strings.TrimSpace(date) == "" {
		return nil, invalid("Date parameter required")
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User not found")
	}
	window, err := calendar.DayWindow(date, user.Timezone)
	if err != nil {
		if errors.Is(err, calendar.ErrInvalidDate) {
			return nil, invalidField("date", err.Error())
		}
		return nil, invalidField("timezone", err.Error())
	}
	blocks, err := s.blockRepo.ListInWindow(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	if err := s.attachTasks(ctx, userID, blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *TimeBlockService) Create(ctx context.Context, userID string, input TimeBlockInput) (*model.TimeBlock, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalidField("title", "is required")
	}
	if input.Start == nil {
		return nil, invalidField("start", "is required")
	}
	if input.End == nil {
		return nil, invalidField("end", "is required")
	}
	start, end := input.Start.UTC(), input.End.UTC()
	if err := validateInterval(start, end); err != nil {
		return nil, err
	}
	if err := validateNotification(input.Notification); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.FindByID(ctx, userID); err != nil {
		return nil, notFound(err, "User not found")
	}

	block := model.TimeBlock{
		UserID:       userID,
		Title:        title,
		Start:        start,
		End:          end,
		Category:     trimmedOrNil(input.Category),
		Notes:        input.Notes,
		Notification: input.Notification,
	}

	if input.TaskID != nil && *input.TaskID != "" {
		task, err := s.taskRepo.FindByID(ctx, userID, *input.TaskID)
		if err != nil {
			return nil, notFound(err, "Task not found")
		}
		block.TaskID = &task.ID
		block.Task = task.Summary()
	}

	if err := s.blockRepo.CreateChecked(ctx, &block); err != nil {
		return nil, err
	}
	s.reminders.ScheduleBlock(ctx, block)
	return &block, nil
}

func (s *TimeBlockService) Update(ctx context.Context, userID, blockID string, patch TimeBlockPatch) (*model.TimeBlock, error) {
	block, err := s.blockRepo.FindByID(ctx, userID, blockID)
	if err != nil {
		return nil, notFound(err, "Time block not found")
	}

	if patch.Title.Set {
		if patch.Title.Value == nil || strings.TrimSpace(*patch.Title.Value) == "" {
			return nil, invalidField("title", "cannot be empty")
		}
		block.Title = strings.TrimSpace(*patch.Title.Value)
	}

	moved := false
	if patch.Start.Set {
		if patch.Start.Value == nil {
			return nil, invalidField("start", "cannot be null")
		}
		block.Start = patch.Start.Value.UTC()
		moved = true
	}
	if patch.End.Set {
		if patch.End.Value == nil {
			return nil, invalidField("end", "cannot be null")
		}
		block.End = patch.End.Value.UTC()
		moved = true
	}
	if moved {
		if err := validateInterval(block.Start, block.End); err != nil {
			return nil, err
		}
	}

	if patch.ActualEnd.Set {
		block.ActualEnd = utcPtr(patch.ActualEnd.Value)
	}
	if block.ActualEnd != nil {
		if !block.ActualEnd.After(block.Start) || block.ActualEnd.After(block.End) {
			return nil, invalidField("actualEnd", "must be after start and not after end")
		}
	}

	if patch.TaskID.Set {
		block.TaskID = nil
		if id := patch.TaskID.Value; id != nil && *id != "" {
			task, err := s.taskRepo.FindByID(ctx, userID, *id)
			if err != nil {
				return nil, notFound(err, "Task not found")
			}
			block.TaskID = &task.ID
		}
	}
	if patch.Category.Set {
		block.Category = trimmedOrNil(patch.Category.Value)
	}
	if patch.Notes.Set {
		block.Notes = patch.Notes.Value
	}
	if patch.Notification.Set {
		if err := validateNotification(patch.Notification.Value); err != nil {
			return nil, err
		}
		block.Notification = patch.Notification.Value
	}

	if err := s.blockRepo.SaveChecked(ctx, block); err != nil {
		return nil, err
	}

	// The armed reminder carries the title, so a rename re-arms it too.
	if moved || patch.Title.Set || patch.Notification.Set {
		s.reminders.CancelBlock(block.ID)
		s.reminders.ScheduleBlock(ctx, *block)
	}

	one := []model.TimeBlock{*block}
	if err := s.attachTasks(ctx, userID, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *TimeBlockService) Delete(ctx context.Context, userID, blockID string) error {
	if err := s.blockRepo.Delete(ctx, userID, blockID); err != nil {
		return notFound(err, "Time block not found")
	}
	s.reminders.CancelBlock(blockID)
	return nil
}

// attachTasks fills the task summary of linked blocks with one query.
func (s *TimeBlockService) attachTasks(ctx context.Context, userID string, blocks []model.TimeBlock) error {
	var ids []string
	for _, b := range blocks {
		if b.TaskID != nil {
			ids = append(ids, *b.TaskID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	tasks, err := s.taskRepo.ListByIDs(ctx, userID, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	for i := range blocks {
		if blocks[i].TaskID != nil {
			blocks[i].Task = byID[*blocks[i].TaskID].Summary()
		}
	}
	return nil
}

func validateInterval(start, end time.Time) error {
	if !end.After(start) {
		return invalidField("end", "must be after start")
	}
	if !calendar.OnGrid(start) || !calendar.OnGrid(end) {
		return invalid("Time must be in 15-minute increments")
	}
	return nil
}

func validateNotification(n *model.NotificationSettings) error {
	if n != nil && n.MinutesBefore < 0 {
		return invalidField("notification.minutesBefore", "must be zero or more")
	}
	return nil
}

type noReminders struct{}

func (noReminders) ScheduleBlock(context.Context, model.TimeBlock) {}
func (noReminders) CancelBlock(string)                             {}
