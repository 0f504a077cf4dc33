package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"timeblocker/internal/logger"
	"timeblocker/internal/model"
	"timeblocker/internal/repository"
	"timeblocker/internal/service"
	"timeblocker/internal/testutil"
)

type fakeAPI struct {
	updates chan tgbotapi.Update
	sent    []tgbotapi.MessageConfig
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 4)}
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

type fixture struct {
	db   *gorm.DB
	api  *fakeAPI
	auth *service.AuthService
	bot  *Bot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	blocks := repository.NewTimeBlockRepository(db)

	auth := service.NewAuthService(users, "0123456789abcdef0123456789abcdef", time.Hour)
	api := newFakeAPI()
	b := New(api, auth, service.NewTaskService(tasks, blocks), service.NewTimeBlockService(blocks, tasks, users, nil), logger.Discard())
	return &fixture{db: db, api: api, auth: auth, bot: b}
}

func command(chatID int64, text string) *tgbotapi.Message {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func TestBot_LinkAndUnlink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db)
	token, err := f.auth.IssueToken(user)
	require.NoError(t, err)

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/link")))
	assert.Contains(t, f.api.last(), "Usage")

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/link not-a-token")))
	assert.Equal(t, "That token is invalid or expired.", f.api.last())

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/link "+token)))
	assert.Contains(t, f.api.last(), user.Email)

	linked, err := f.auth.UserByTelegramChat(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, user.ID, linked.ID)

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/unlink")))
	_, err = f.auth.UserByTelegramChat(ctx, 42)
	assert.ErrorIs(t, err, service.ErrNotFound)

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/unlink")))
	assert.Equal(t, "This chat is not linked.", f.api.last())
}

func TestBot_RelinkMovesChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := testutil.CreateUser(t, f.db, testutil.WithTelegramChat(7))
	second := testutil.CreateUser(t, f.db)
	token, err := f.auth.IssueToken(second)
	require.NoError(t, err)

	require.NoError(t, f.bot.handleMessage(ctx, command(7, "/link "+token)))

	holder, err := f.auth.UserByTelegramChat(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, second.ID, holder.ID)

	reloaded, err := f.auth.Me(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.TelegramChatID)
}

func TestBot_TodayAndTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, testutil.WithTimezone("America/New_York"), testutil.WithTelegramChat(9))
	f.bot.now = func() time.Time { return testutil.Time(t, "2024-06-01T15:00:00Z") }

	require.NoError(t, f.bot.handleMessage(ctx, command(9, "/today")))
	assert.Contains(t, f.api.last(), "Saturday, Jun 1")
	assert.Contains(t, f.api.last(), "Nothing scheduled.")

	task := testutil.CreateTask(t, f.db, user.ID, "Write <report>", nil)
	testutil.CreateBlock(t, f.db, user.ID,
		testutil.Time(t, "2024-06-01T13:00:00Z"), testutil.Time(t, "2024-06-01T14:00:00Z"), &task.ID)
	done := testutil.CreateTask(t, f.db, user.ID, "Done already", nil)
	done.Status = model.TaskStatusCompleted
	require.NoError(t, f.db.Save(done).Error)

	testutil.CreateBlock(t, f.db, user.ID,
		testutil.Time(t, "2024-06-01T14:30:00Z"), testutil.Time(t, "2024-06-01T15:30:00Z"), nil)

	require.NoError(t, f.bot.handleMessage(ctx, command(9, "/today")))
	day := f.api.last()
	assert.Contains(t, day, "09:00-10:00")
	assert.Equal(t, 1, strings.Count(day, "⏳"), "only the running block is marked")
	assert.True(t, strings.HasSuffix(day, "⏳ now"), "the running block is marked: %q", day)

	require.NoError(t, f.bot.handleMessage(ctx, command(9, "/tasks")))
	text := f.api.last()
	assert.Contains(t, text, "Open tasks</b> (1)")
	assert.Contains(t, text, "Write &lt;report&gt;")
	assert.NotContains(t, text, "Done already")
	assert.Equal(t, tgbotapi.ModeHTML, f.api.sent[len(f.api.sent)-1].ParseMode)
}

func TestBot_UnlinkedChatIsPrompted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.handleMessage(ctx, command(5, "/today")))
	assert.Contains(t, f.api.last(), "/link")

	require.NoError(t, f.bot.handleMessage(ctx, &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 5, Type: "private"}}))
	assert.Contains(t, f.api.last(), "/help")

	require.NoError(t, f.bot.handleMessage(ctx, command(5, "/nope")))
	assert.Contains(t, f.api.last(), "Unknown command")
}

func TestFormatTasks_Truncates(t *testing.T) {
	var tasks []model.Task
	for i := 0; i < maxListedTasks+3; i++ {
		tasks = append(tasks, model.Task{Title: "t", Priority: model.PriorityHigh, Status: model.TaskStatusPending})
	}
	text := formatTasks(tasks)
	assert.Contains(t, text, "(13)")
	assert.Contains(t, text, "…and 3 more")

	assert.Equal(t, "No open tasks. 🎉", formatTasks(nil))
}

func TestBot_StartStopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.api.updates <- tgbotapi.Update{Message: command(1, "/help")}
	f.api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "/help", Chat: &tgbotapi.Chat{ID: 2, Type: "group"}}}

	done := make(chan error, 1)
	go func() { done <- f.bot.Start(ctx) }()

	require.Eventually(t, func() bool { return len(f.api.updates) == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	require.Len(t, f.api.sent, 1, "group chats are ignored")
	assert.Equal(t, int64(1), f.api.sent[0].ChatID)
}
