package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"timeblocker/internal/calendar"
	"timeblocker/internal/model"
	"timeblocker/internal/notify"
	"timeblocker/internal/repository"
)

const deliveryTimeout = 30 * time.Second

// NotificationService keeps one in-memory timer per block with an enabled reminder.
type NotificationService struct {
	users    *repository.UserRepository
	blocks   *repository.TimeBlockRepository
	notifier notify.Notifier
	logger   *log.Logger
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewNotificationService(users *repository.UserRepository, blocks *repository.TimeBlockRepository,
	notifier notify.Notifier, logger *log.Logger) *NotificationService {
	return &NotificationService{
		users:    users,
		blocks:   blocks,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
}

// ScheduleBlock arms the reminder of the block, replacing any earlier one.
// Disabled reminders and reminders already due in the past are not armed.
func (s *NotificationService) ScheduleBlock(_ context.Context, block model.TimeBlock) {
	s.CancelBlock(block.ID)

	at, ok := block.NotifyAt()
	if !ok {
		return
	}
	delay := at.Sub(s.now())
	if delay < 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[block.ID] == timer {
			delete(s.timers, block.ID)
		}
		s.mu.Unlock()
		s.fire(block)
	})
	s.timers[block.ID] = timer
	s.logger.Debug("reminder armed", "block", block.ID, "at", at)
}

// CancelBlock disarms the reminder of the block, if any.
func (s *NotificationService) CancelBlock(blockID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[blockID]; ok {
		timer.Stop()
		delete(s.timers, blockID)
	}
}

// Pending reports how many reminders are armed.
func (s *NotificationService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// RearmPending schedules reminders for every stored future block and drops
// timers whose block is gone. It runs at startup and then periodically, so
// blocks written by other processes such as seed-demo are picked up.
func (s *NotificationService) RearmPending(ctx context.Context) (int, error) {
	blocks, err := s.blocks.ListStartingAfter(ctx, s.now())
	if err != nil {
		return 0, err
	}
	stored := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		stored[b.ID] = struct{}{}
		s.ScheduleBlock(ctx, b)
	}

	s.mu.Lock()
	for id, timer := range s.timers {
		if _, ok := stored[id]; !ok {
			timer.Stop()
			delete(s.timers, id)
		}
	}
	s.mu.Unlock()
	return s.Pending(), nil
}

// StopAll disarms every reminder.
func (s *NotificationService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *NotificationService) fire(block model.TimeBlock) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	user, err := s.users.FindByID(ctx, block.UserID)
	if err != nil {
		s.logger.Error("reminder user lookup failed", "block", block.ID, "err", err)
		return
	}
	msg := BlockReminderMessage(block, user.Timezone)
	if err := s.notifier.Notify(ctx, user, msg); err != nil {
		s.logger.Error("reminder delivery failed", "block", block.ID, "user", user.ID, "err", err)
		return
	}
	s.logger.Info("reminder sent", "block", block.ID, "user", user.ID)
}

// BlockReminderMessage renders the reminder of a block for a user in the given timezone.
func BlockReminderMessage(block model.TimeBlock, timezone string) notify.Message {
	loc, err := calendar.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	title := "Starting now: " + block.Title
	if block.Notification != nil && block.Notification.MinutesBefore > 0 {
		title = "Upcoming: " + block.Title
	}
	return notify.Message{
		Title: title,
		Body:  fmt.Sprintf("Scheduled for %s", block.Start.In(loc).Format("3:04 PM")),
		Data:  map[string]any{"timeBlockId": block.ID},
	}
}
