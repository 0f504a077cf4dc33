package service

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"timeblocker/internal/config"
)

// SchedulerService wraps cron-based jobs.
type SchedulerService struct {
	cron    *cron.Cron
	logger  *log.Logger
	timeout time.Duration
}

func NewSchedulerService(loc *time.Location, logger *log.Logger) *SchedulerService {
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		logger:  logger,
		timeout: 5 * time.Minute,
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
// Each run gets its own context bounded by the scheduler timeout.
func (s *SchedulerService) ScheduleDaily(timeStr string, job func(ctx context.Context) error) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, s.wrap(timeStr, job))
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func(ctx context.Context) error) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, s.wrap(spec, job))
}

// Next returns the next activation of the entry.
func (s *SchedulerService) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *SchedulerService) wrap(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "err", err)
		}
	}
}

func buildDailySpec(timeStr string) (string, error) {
	hour, minute, err := config.ParseClock(timeStr)
	if err != nil {
		return "", err
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// cronLogger adapts the charm logger to cron.Logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "err", err)...)
}
