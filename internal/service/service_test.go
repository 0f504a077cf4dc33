package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"timeblocker/internal/logger"
	"timeblocker/internal/model"
	"timeblocker/internal/notify"
	"timeblocker/internal/repository"
	"timeblocker/internal/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	db        *gorm.DB
	users     *repository.UserRepository
	tasks     *repository.TaskRepository
	blocks    *repository.TimeBlockRepository
	reminders *recordingReminders
	auth      *AuthService
	taskSvc   *TaskService
	blockSvc  *TimeBlockService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	env := &testEnv{
		db:        db,
		users:     repository.NewUserRepository(db),
		tasks:     repository.NewTaskRepository(db),
		blocks:    repository.NewTimeBlockRepository(db),
		reminders: &recordingReminders{},
	}
	env.auth = NewAuthService(env.users, testSecret, time.Hour)
	env.taskSvc = NewTaskService(env.tasks, env.blocks)
	env.blockSvc = NewTimeBlockService(env.blocks, env.tasks, env.users, env.reminders)
	return env
}

type recordingReminders struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
}

func (r *recordingReminders) ScheduleBlock(_ context.Context, b model.TimeBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, b.ID)
}

func (r *recordingReminders) CancelBlock(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, id)
}

type sentMessage struct {
	userID string
	msg    notify.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, user *model.User, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{userID: user.ID, msg: msg})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

var discardLogger = logger.Discard
