// Package notify delivers user-facing notifications over the configured transports.
package notify

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"timeblocker/internal/model"
)

// Message is a transport-neutral notification.
type Message struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Notifier delivers a message to one user.
type Notifier interface {
	Notify(ctx context.Context, user *model.User, msg Message) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, user *model.User, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, user, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes notifications to the logger. Used when no transport is configured.
type Log struct {
	Logger *log.Logger
}

func (l Log) Notify(_ context.Context, user *model.User, msg Message) error {
	l.Logger.Info("notification", "user", user.ID, "title", msg.Title, "body", msg.Body)
	return nil
}
