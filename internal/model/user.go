package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushKeys holds the browser-generated encryption keys of a push subscription.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is a Web Push endpoint registered by one of the user's browsers.
type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

// User owns tasks and time blocks. Timezone drives every day-grid computation.
type User struct {
	ID                string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email             string             `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash      string             `gorm:"not null" json:"-"`
	Name              *string            `json:"name,omitempty"`
	Timezone          string             `gorm:"not null;default:UTC" json:"timezone"`
	DailyPlanningTime *string            `json:"dailyPlanningTime,omitempty"` // HH:MM
	PushSubscriptions []PushSubscription `gorm:"serializer:json;type:jsonb" json:"-"`
	TelegramChatID    *int64             `json:"telegramChatId,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// UpsertPushSubscription replaces the subscription with the same endpoint or appends it.
// It reports whether an existing entry was replaced.
func (u *User) UpsertPushSubscription(sub PushSubscription) bool {
	for i := range u.PushSubscriptions {
		if u.PushSubscriptions[i].Endpoint == sub.Endpoint {
			u.PushSubscriptions[i] = sub
			return true
		}
	}
	u.PushSubscriptions = append(u.PushSubscriptions, sub)
	return false
}

// RemovePushSubscriptions drops every subscription whose endpoint is listed.
func (u *User) RemovePushSubscriptions(endpoints ...string) int {
	if len(endpoints) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(endpoints))
	for _, e := range endpoints {
		drop[e] = struct{}{}
	}
	kept := u.PushSubscriptions[:0]
	for _, sub := range u.PushSubscriptions {
		if _, ok := drop[sub.Endpoint]; ok {
			continue
		}
		kept = append(kept, sub)
	}
	removed := len(u.PushSubscriptions) - len(kept)
	u.PushSubscriptions = kept
	return removed
}
