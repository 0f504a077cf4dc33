package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/charmbracelet/log"

	"timeblocker/internal/model"
)

// SubscriptionStore persists a user's pruned subscription list.
type SubscriptionStore interface {
	SavePushSubscriptions(ctx context.Context, user *model.User) error
}

// VAPIDConfig identifies this server to push services.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subscriber string // contact address, with or without mailto:
}

// WebPush sends to every browser subscription of the user.
// Subscriptions the push service reports as gone are removed from the user.
type WebPush struct {
	vapid  VAPIDConfig
	store  SubscriptionStore
	client webpush.HTTPClient
	logger *log.Logger
	now    func() time.Time
}

func NewWebPush(vapid VAPIDConfig, store SubscriptionStore, logger *log.Logger) *WebPush {
	// webpush-go adds the mailto: scheme itself to anything that is not an https: URL.
	vapid.Subscriber = strings.TrimPrefix(vapid.Subscriber, "mailto:")
	return &WebPush{
		vapid:  vapid,
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		now:    time.Now,
	}
}

type pushPayload struct {
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func (w *WebPush) Notify(ctx context.Context, user *model.User, msg Message) error {
	if len(user.PushSubscriptions) == 0 {
		return nil
	}
	payload, err := json.Marshal(pushPayload{
		Title:     msg.Title,
		Body:      msg.Body,
		Data:      msg.Data,
		Timestamp: w.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	var (
		errs []error
		gone []string
	)
	for _, sub := range user.PushSubscriptions {
		status, err := w.send(ctx, payload, sub)
		switch {
		case status == http.StatusGone || status == http.StatusNotFound:
			gone = append(gone, sub.Endpoint)
		case err != nil:
			w.logger.Warn("push failed", "user", user.ID, "endpoint", sub.Endpoint, "err", err)
			errs = append(errs, err)
		}
	}

	if user.RemovePushSubscriptions(gone...) > 0 {
		w.logger.Info("pruned push subscriptions", "user", user.ID, "count", len(gone))
		if err := w.store.SavePushSubscriptions(ctx, user); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *WebPush) send(ctx context.Context, payload []byte, sub model.PushSubscription) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.vapid.Subscriber,
		VAPIDPublicKey:  w.vapid.PublicKey,
		VAPIDPrivateKey: w.vapid.PrivateKey,
		TTL:             60,
	})
	if err != nil {
		return 0, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("push service answered %s", resp.Status)
	}
	return resp.StatusCode, nil
}
