package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"timeblocker/internal/calendar"
	"timeblocker/internal/config"
	"timeblocker/internal/model"
	"timeblocker/internal/repository"
)

const (
	DemoEmail    = "demo@timeblocker.app"
	DemoPassword = "demo123"
	demoName     = "Demo User"
	demoTimezone = "America/New_York"
	demoPlanning = "09:00"
)

// DemoService owns the shared demo account.
type DemoService struct {
	repos     repository.Repos
	reminders BlockReminders
	logger    *log.Logger
	now       func() time.Time
}

func NewDemoService(repos repository.Repos, reminders BlockReminders, logger *log.Logger) *DemoService {
	if reminders == nil {
		reminders = noReminders{}
	}
	return &DemoService{repos: repos, reminders: reminders, logger: logger, now: time.Now}
}

// EnsureDemoUser returns the demo user, creating and seeding it when absent.
// When two first logins race, the one that creates the user seeds it.
func (s *DemoService) EnsureDemoUser(ctx context.Context) (*model.User, error) {
	user, err := s.repos.Users.FindByEmail(ctx, DemoEmail)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	user, created, err := s.claimDemoUser(ctx)
	if err != nil {
		return nil, err
	}
	if !created {
		return user, nil
	}
	if err := s.reseed(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Seed creates the demo user if needed, wipes its tasks and blocks and recreates the sample data.
func (s *DemoService) Seed(ctx context.Context) (*model.User, error) {
	user, err := s.repos.Users.FindByEmail(ctx, DemoEmail)
	if errors.Is(err, repository.ErrNotFound) {
		user, _, err = s.claimDemoUser(ctx)
	}
	if err != nil {
		return nil, err
	}
	if err := s.reseed(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// reseed replaces the user's tasks and blocks in one transaction, then moves
// the reminders over once it has committed.
func (s *DemoService) reseed(ctx context.Context, user *model.User) error {
	loc, err := calendar.LoadLocation(user.Timezone)
	if err != nil {
		return err
	}
	today := calendar.DayWindowAt(s.now(), loc).Start.In(loc)

	var (
		removed []string
		blocks  []model.TimeBlock
		count   int
	)
	err = s.repos.Transaction(ctx, func(tx repository.Repos) error {
		var err error
		if removed, err = tx.Blocks.DeleteAllForUser(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.Tasks.DeleteAllForUser(ctx, user.ID); err != nil {
			return err
		}
		tasks, err := seedTasks(ctx, tx.Tasks, user.ID, today)
		if err != nil {
			return err
		}
		count = len(tasks)
		blocks, err = seedBlocks(ctx, tx.Blocks, user.ID, today, tasks)
		return err
	})
	if err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}

	for _, id := range removed {
		s.reminders.CancelBlock(id)
	}
	for _, b := range blocks {
		s.reminders.ScheduleBlock(ctx, b)
	}
	s.logger.Info("demo data seeded", "user", user.ID, "tasks", count, "replaced_blocks", len(removed))
	return nil
}

// claimDemoUser creates the demo user. When another request created it first
// the existing user is returned with created false.
func (s *DemoService) claimDemoUser(ctx context.Context) (*model.User, bool, error) {
	hash, err := HashPassword(DemoPassword)
	if err != nil {
		return nil, false, err
	}
	name, planning := demoName, demoPlanning
	user := &model.User{
		Email:             DemoEmail,
		PasswordHash:      hash,
		Name:              &name,
		Timezone:          demoTimezone,
		DailyPlanningTime: &planning,
	}
	err = s.repos.Users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, err := s.repos.Users.FindByEmail(ctx, DemoEmail)
		if err != nil {
			return nil, false, fmt.Errorf("load demo user: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create demo user: %w", err)
	}
	s.logger.Info("demo user created", "user", user.ID)
	return user, true, nil
}

type demoTask struct {
	key        string
	title      string
	notes      string
	priority   model.TaskPriority
	status     model.TaskStatus
	category   string
	minutes    int
	deadlineIn int // days from today, 0 for none
	subtask    bool
}

var demoTasks = []demoTask{
	{key: "project", title: "Q4 Product Launch", notes: "Complete product launch preparation for Q4 release",
		priority: model.PriorityHigh, status: model.TaskStatusInProgress, category: "Work", minutes: 480, deadlineIn: 14},
	{key: "marketing", title: "Create marketing campaign", notes: "Design social media and email marketing strategy",
		priority: model.PriorityHigh, status: model.TaskStatusPending, category: "Work", minutes: 120, subtask: true},
	{key: "testing", title: "Final testing & QA", notes: "Complete end-to-end testing before launch",
		priority: model.PriorityHigh, status: model.TaskStatusScheduled, category: "Work", minutes: 180, subtask: true},
	{key: "docs", title: "Update user documentation", notes: "Revise help docs and tutorial videos",
		priority: model.PriorityMedium, status: model.TaskStatusCompleted, category: "Work", minutes: 90, subtask: true},
	{key: "standup", title: "Team standup preparation", notes: "Review yesterday's progress and plan today's work",
		priority: model.PriorityMedium, status: model.TaskStatusCompleted, category: "Work", minutes: 15},
	{key: "client", title: "Client feedback session", notes: "Review prototype with key stakeholders",
		priority: model.PriorityHigh, status: model.TaskStatusScheduled, category: "Work", minutes: 60, deadlineIn: 2},
	{key: "vacation", title: "Plan vacation", notes: "Research destinations and book accommodations for summer trip",
		priority: model.PriorityLow, status: model.TaskStatusPending, category: "Personal", minutes: 90, deadlineIn: 7},
	{key: "workout", title: "Morning workout routine", notes: "Gym session: 30min cardio + 30min strength training",
		priority: model.PriorityMedium, status: model.TaskStatusScheduled, category: "Health", minutes: 60},
	{key: "learning", title: "Go concurrency patterns", notes: "Study channels, contexts and worker pools",
		priority: model.PriorityMedium, status: model.TaskStatusPending, category: "Learning", minutes: 120},
	{key: "inbox", title: "Clear inbox", notes: "Process and respond to pending emails",
		priority: model.PriorityLow, status: model.TaskStatusPending, category: "Admin", minutes: 30},
}

func seedTasks(ctx context.Context, repo *repository.TaskRepository, userID string, today time.Time) (map[string]*model.Task, error) {
	byKey := make(map[string]*model.Task, len(demoTasks))
	var project *model.Task
	for _, d := range demoTasks {
		task := &model.Task{
			UserID:           userID,
			Title:            d.title,
			Notes:            ptr(d.notes),
			Status:           d.status,
			Priority:         d.priority,
			Category:         ptr(d.category),
			EstimatedMinutes: ptr(d.minutes),
		}
		if d.deadlineIn > 0 {
			task.Deadline = ptr(today.AddDate(0, 0, d.deadlineIn).UTC())
		}
		if d.subtask && project != nil {
			task.ParentTaskID = &project.ID
		}
		if err := repo.Create(ctx, task); err != nil {
			return nil, err
		}
		if project == nil {
			project = task
		}
		byKey[d.key] = task
	}
	return byKey, nil
}

type demoBlock struct {
	day           int // 0 today, 1 tomorrow
	start, end    string
	title         string
	task          string
	category      string
	notes         string
	remindBefore  int // minutes; -1 for no reminder
	closedEarlyBy int // minutes before end
}

var demoBlocks = []demoBlock{
	{day: 0, start: "07:00", end: "08:00", title: "Morning workout routine", task: "workout", category: "Health",
		notes: "Cardio + strength training", remindBefore: 10},
	{day: 0, start: "09:00", end: "09:30", title: "Team Standup", task: "standup", category: "Work",
		remindBefore: 5, closedEarlyBy: 5},
	{day: 0, start: "09:30", end: "10:00", title: "Process emails", task: "inbox", category: "Admin", remindBefore: -1},
	{day: 0, start: "10:00", end: "12:00", title: "Marketing campaign planning", task: "marketing", category: "Work",
		notes: "Deep work, no interruptions", remindBefore: -1},
	{day: 0, start: "12:00", end: "13:00", title: "Lunch break", category: "Break", remindBefore: -1},
	{day: 0, start: "14:00", end: "15:00", title: "Client feedback session", task: "client", category: "Work", remindBefore: 15},
	{day: 0, start: "15:15", end: "16:45", title: "QA Testing Session", task: "testing", category: "Work", remindBefore: -1},
	{day: 0, start: "17:00", end: "18:30", title: "Go Learning", task: "learning", category: "Learning", remindBefore: -1},
	{day: 1, start: "06:30", end: "07:30", title: "Morning run", category: "Health", remindBefore: -1},
	{day: 1, start: "09:00", end: "09:30", title: "Daily planning & review", category: "Planning", remindBefore: 0},
	{day: 1, start: "10:00", end: "11:30", title: "Vacation research", task: "vacation", category: "Personal", remindBefore: -1},
	{day: 1, start: "14:00", end: "16:00", title: "Q4 Launch Progress Review", task: "project", category: "Work", remindBefore: -1},
}

func seedBlocks(ctx context.Context, repo *repository.TimeBlockRepository, userID string, today time.Time,
	tasks map[string]*model.Task) ([]model.TimeBlock, error) {
	blocks := make([]model.TimeBlock, 0, len(demoBlocks))
	for _, d := range demoBlocks {
		day := today.AddDate(0, 0, d.day)
		start, err := atClock(day, d.start)
		if err != nil {
			return nil, err
		}
		end, err := atClock(day, d.end)
		if err != nil {
			return nil, err
		}
		block := model.TimeBlock{
			UserID:   userID,
			Title:    d.title,
			Start:    start.UTC(),
			End:      end.UTC(),
			Category: ptr(d.category),
		}
		if d.notes != "" {
			block.Notes = ptr(d.notes)
		}
		if t, ok := tasks[d.task]; ok {
			block.TaskID = &t.ID
		}
		if d.remindBefore >= 0 {
			block.Notification = &model.NotificationSettings{Enabled: true, MinutesBefore: d.remindBefore}
		}
		if d.closedEarlyBy > 0 {
			block.ActualEnd = ptr(block.End.Add(-time.Duration(d.closedEarlyBy) * time.Minute))
		}
		if err := repo.CreateChecked(ctx, &block); err != nil {
			return nil, fmt.Errorf("seed block %q: %w", d.title, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// atClock returns the wall-clock HH:MM on the local date of day.
func atClock(day time.Time, hhmm string) (time.Time, error) {
	h, m, err := config.ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location()), nil
}

func ptr[T any](v T) *T {
	return &v
}
