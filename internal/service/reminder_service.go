package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"timeblocker/internal/calendar"
	"timeblocker/internal/model"
	"timeblocker/internal/notify"
	"timeblocker/internal/repository"
)

// ReminderService sends the daily planning reminder.
type ReminderService struct {
	users    *repository.UserRepository
	tasks    *repository.TaskRepository
	blocks   *repository.TimeBlockRepository
	notifier notify.Notifier
	logger   *log.Logger
}

func NewReminderService(users *repository.UserRepository, tasks *repository.TaskRepository,
	blocks *repository.TimeBlockRepository, notifier notify.Notifier, logger *log.Logger) *ReminderService {
	return &ReminderService{users: users, tasks: tasks, blocks: blocks, notifier: notifier, logger: logger}
}

// DailySummary builds the planning reminder of a user for the local day containing now.
func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (notify.Message, error) {
	loc, err := calendar.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	open, err := s.tasks.CountOpen(ctx, user.ID)
	if err != nil {
		return notify.Message{}, err
	}
	scheduled, err := s.blocks.CountInWindow(ctx, user.ID, calendar.DayWindowAt(now, loc))
	if err != nil {
		return notify.Message{}, err
	}

	body := fmt.Sprintf("You have %s and %s scheduled today. Review your tasks and schedule your time blocks for today.",
		plural(open, "open task"), plural(scheduled, "time block"))
	return notify.Message{
		Title: "Time to plan your day!",
		Body:  body,
		Data:  map[string]any{"type": "daily-planning", "url": "/day"},
	}, nil
}

// SendDailyPlanning notifies every user with a planning time set. It returns how many were notified.
func (s *ReminderService) SendDailyPlanning(ctx context.Context, now time.Time) (int, error) {
	users, err := s.users.ListWithPlanningTime(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for i := range users {
		user := &users[i]
		msg, err := s.DailySummary(ctx, *user, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("summary for %s: %w", user.ID, err))
			continue
		}
		if err := s.notifier.Notify(ctx, user, msg); err != nil {
			s.logger.Warn("planning reminder failed", "user", user.ID, "err", err)
			errs = append(errs, fmt.Errorf("notify %s: %w", user.ID, err))
			continue
		}
		sent++
	}
	s.logger.Info("planning reminders sent", "sent", sent, "users", len(users))
	return sent, errors.Join(errs...)
}

func plural(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
