package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"timeblocker/internal/calendar"
	"timeblocker/internal/config"
	"timeblocker/internal/model"
	"timeblocker/internal/repository"
)

const (
	minPasswordLen = 6
	bcryptCost     = 10
)

// Claims is the token payload.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// RegisterInput represents data required to create an account.
type RegisterInput struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6"`
	Name     *string `json:"name"`
	Timezone string  `json:"timezone"`
}

// ProfilePatch updates account settings. Absent keys are left alone.
type ProfilePatch struct {
	Name              Optional[string] `json:"name"`
	Timezone          Optional[string] `json:"timezone"`
	DailyPlanningTime Optional[string] `json:"dailyPlanningTime"`
	TelegramChatID    Optional[int64]  `json:"telegramChatId"`
}

// AuthService handles accounts and bearer tokens.
type AuthService struct {
	users  *repository.UserRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(users *repository.UserRepository, secret string, ttl time.Duration) *AuthService {
	return &AuthService{users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Register creates a user and returns a token for it.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*model.User, string, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, "", err
	}
	if len(input.Password) < minPasswordLen {
		return nil, "", invalidField("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	tz := strings.TrimSpace(input.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := calendar.LoadLocation(tz); err != nil {
		return nil, "", invalidField("timezone", err.Error())
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, "", invalid("Email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, "", err
	}
	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         trimmedOrNil(input.Name),
		Timezone:     tz,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", invalid("Email already registered")
		}
		return nil, "", err
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login checks credentials. Unknown email and wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if password == "" {
		return nil, "", invalidField("password", "is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", unauthorized("Invalid credentials")
		}
		return nil, "", err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, "", unauthorized("Invalid credentials")
	}
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// IssueToken signs an HS256 token for the user.
func (s *AuthService) IssueToken(user *model.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token, rejecting other signing methods and expired tokens.
func (s *AuthService) VerifyToken(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, unauthorized("Please authenticate")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.UserID == "" {
		return nil, unauthorized("Please authenticate")
	}
	return claims, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User not found")
	}
	return user, nil
}

// UpdateProfile applies account settings.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*model.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.Name.Set {
		user.Name = trimmedOrNil(patch.Name.Value)
	}
	if patch.Timezone.Set {
		if patch.Timezone.Value == nil {
			return nil, invalidField("timezone", "cannot be null")
		}
		tz := strings.TrimSpace(*patch.Timezone.Value)
		if tz == "" {
			return nil, invalidField("timezone", "cannot be empty")
		}
		if _, err := calendar.LoadLocation(tz); err != nil {
			return nil, invalidField("timezone", err.Error())
		}
		user.Timezone = tz
	}
	if patch.DailyPlanningTime.Set {
		if patch.DailyPlanningTime.Value == nil || strings.TrimSpace(*patch.DailyPlanningTime.Value) == "" {
			user.DailyPlanningTime = nil
		} else {
			h, m, err := config.ParseClock(*patch.DailyPlanningTime.Value)
			if err != nil {
				return nil, invalidField("dailyPlanningTime", err.Error())
			}
			hhmm := fmt.Sprintf("%02d:%02d", h, m)
			user.DailyPlanningTime = &hhmm
		}
	}
	if patch.TelegramChatID.Set {
		user.TelegramChatID = patch.TelegramChatID.Value
	}

	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// AddPushSubscription stores a browser subscription, replacing one with the same endpoint.
func (s *AuthService) AddPushSubscription(ctx context.Context, userID string, sub model.PushSubscription) error {
	if strings.TrimSpace(sub.Endpoint) == "" {
		return invalidField("subscription.endpoint", "is required")
	}
	if sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return invalidField("subscription.keys", "p256dh and auth are required")
	}
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	user.UpsertPushSubscription(sub)
	return s.users.SavePushSubscriptions(ctx, user)
}

// LinkTelegramChat attaches a Telegram chat to the account the token belongs to.
// A chat belongs to at most one account, so an earlier link is dropped first.
func (s *AuthService) LinkTelegramChat(ctx context.Context, token string, chatID int64) (*model.User, error) {
	claims, err := s.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	if _, err := s.UnlinkTelegramChat(ctx, chatID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	user, err := s.Me(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	user.TelegramChatID = &chatID
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UnlinkTelegramChat detaches the chat from whichever account holds it.
func (s *AuthService) UnlinkTelegramChat(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := s.UserByTelegramChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	user.TelegramChatID = nil
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) UserByTelegramChat(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := s.users.FindByTelegramChat(ctx, chatID)
	if err != nil {
		return nil, notFound(err, "Telegram chat is not linked")
	}
	return user, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalidField("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidField("email", "must be a valid email address")
	}
	return email, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
