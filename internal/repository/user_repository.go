package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"timeblocker/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user: %w", translate(err))
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user: %w", translate(err))
	}
	return &user, nil
}

// FindByTelegramChat returns the user linked to a Telegram chat.
func (r *UserRepository) FindByTelegramChat(ctx context.Context, chatID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user by chat: %w", translate(err))
	}
	return &user, nil
}

// Save writes every column of the user.
func (r *UserRepository) Save(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("save user: %w", translate(err))
	}
	return nil
}

// SavePushSubscriptions writes only the subscription list.
func (r *UserRepository) SavePushSubscriptions(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Model(user).Select("push_subscriptions", "updated_at").
		Updates(&model.User{PushSubscriptions: user.PushSubscriptions}).Error
	if err != nil {
		return fmt.Errorf("save push subscriptions: %w", translate(err))
	}
	return nil
}

// ListWithPlanningTime returns users who asked for a daily planning reminder.
func (r *UserRepository) ListWithPlanningTime(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).
		Where("daily_planning_time IS NOT NULL AND daily_planning_time <> ''").
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

