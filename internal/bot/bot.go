// Package bot runs the Telegram companion: chats link to an account and can
// ask for the day's schedule. Reminders are delivered by the notify package.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timeblocker/internal/calendar"
	"timeblocker/internal/model"
	"timeblocker/internal/service"
)

const maxListedTasks = 10

// API is the part of the Telegram client the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api    API
	auth   *service.AuthService
	tasks  *service.TaskService
	blocks *service.TimeBlockService
	logger *log.Logger
	now    func() time.Time
}

func New(api API, auth *service.AuthService, tasks *service.TaskService, blocks *service.TimeBlockService, logger *log.Logger) *Bot {
	return &Bot{api: api, auth: auth, tasks: tasks, blocks: blocks, logger: logger, now: time.Now}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("telegram polling started")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		msg := update.Message
		if msg == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, msg); err != nil {
			b.logger.Error("handle telegram message", "chat", msg.Chat.ID, "err", err)
		}
	}
	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "Send /help to see what I can do.")
	}
	b.logger.Debug("telegram command", "chat", msg.Chat.ID, "command", msg.Command())

	switch msg.Command() {
	case "start", "help":
		return b.handleHelp(msg)
	case "link":
		return b.handleLink(ctx, msg)
	case "unlink":
		return b.handleUnlink(ctx, msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "tasks":
		return b.handleTasks(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "<b>Timeblocker</b>\n" +
		"• /link &lt;token&gt; - connect this chat to your account\n" +
		"• /today - today's time blocks\n" +
		"• /tasks - open tasks\n" +
		"• /unlink - stop reminders in this chat"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		return b.sendText(msg.Chat.ID, "Usage: /link &lt;token&gt;. Copy the token from your profile page.")
	}
	user, err := b.auth.LinkTelegramChat(ctx, token, msg.Chat.ID)
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return b.sendText(msg.Chat.ID, "That token is invalid or expired.")
	case err != nil:
		return err
	}
	b.logger.Info("telegram chat linked", "user", user.ID, "chat", msg.Chat.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("Linked to <b>%s</b>. Reminders will arrive here.", escape(user.Email)))
}

func (b *Bot) handleUnlink(ctx context.Context, msg *tgbotapi.Message) error {
	_, err := b.auth.UnlinkTelegramChat(ctx, msg.Chat.ID)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return b.sendText(msg.Chat.ID, "This chat is not linked.")
	case err != nil:
		return err
	}
	return b.sendText(msg.Chat.ID, "Unlinked. No more reminders here.")
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.linkedUser(ctx, msg.Chat.ID)
	if !ok {
		return err
	}
	loc, err := calendar.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := b.now()
	blocks, err := b.blocks.DayView(ctx, user.ID, now.In(loc).Format(calendar.DateLayout))
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, formatDay(now, blocks, loc))
}

func (b *Bot) handleTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.linkedUser(ctx, msg.Chat.ID)
	if !ok {
		return err
	}
	tasks, err := b.tasks.List(ctx, user.ID, service.TaskQuery{})
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, formatTasks(tasks))
}

// linkedUser resolves the chat's account. When the chat is not linked the user
// has already been told and ok is false.
func (b *Bot) linkedUser(ctx context.Context, chatID int64) (*model.User, bool, error) {
	user, err := b.auth.UserByTelegramChat(ctx, chatID)
	if errors.Is(err, service.ErrNotFound) {
		return nil, false, b.sendText(chatID, "Link this chat first: /link &lt;token&gt;")
	}
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// formatDay renders the blocks of the local day containing now. The block
// running at now is marked unless it was closed early.
func formatDay(now time.Time, blocks []model.TimeBlock, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗓 <b>%s</b>\n", now.In(loc).Format("Monday, Jan 2"))
	if len(blocks) == 0 {
		sb.WriteString("Nothing scheduled.")
		return sb.String()
	}
	for _, blk := range blocks {
		fmt.Fprintf(&sb, "\n%s-%s %s", blk.Start.In(loc).Format("15:04"), blk.End.In(loc).Format("15:04"), escape(blk.Title))
		if blk.Category != nil {
			fmt.Fprintf(&sb, " <i>(%s)</i>", escape(*blk.Category))
		}
		switch {
		case blk.ActualEnd != nil:
			sb.WriteString(" ✅")
		case calendar.Window{Start: blk.Start, End: blk.End}.Contains(now):
			sb.WriteString(" ⏳ now")
		}
	}
	return sb.String()
}

func formatTasks(tasks []model.Task) string {
	var open []model.Task
	for _, t := range tasks {
		if t.Status != model.TaskStatusCompleted {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return "No open tasks. 🎉"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 <b>Open tasks</b> (%d)\n", len(open))
	for i, t := range open {
		if i == maxListedTasks {
			fmt.Fprintf(&sb, "\n…and %d more", len(open)-maxListedTasks)
			break
		}
		fmt.Fprintf(&sb, "\n%s %s", priorityIcon(t.Priority), escape(t.Title))
		if t.Deadline != nil {
			fmt.Fprintf(&sb, " · due %s", t.Deadline.Format(calendar.DateLayout))
		}
	}
	return sb.String()
}

func priorityIcon(p model.TaskPriority) string {
	switch p {
	case model.PriorityHigh:
		return "🔴"
	case model.PriorityLow:
		return "⚪"
	default:
		return "🟡"
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
