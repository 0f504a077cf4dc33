package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config keeps runtime settings for the server.
type Config struct {
	Env         string   `toml:"env"`
	Port        int      `toml:"port"`
	DatabaseURL string   `toml:"database_url"`
	CORSOrigins []string `toml:"cors_origins"`

	JWTSecret string        `toml:"jwt_secret"`
	TokenTTL  time.Duration `toml:"-"`

	VAPIDPublicKey  string `toml:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key"`
	VAPIDEmail      string `toml:"vapid_email"`
	TelegramToken   string `toml:"telegram_token"`

	PlanningReminderAt string        `toml:"planning_reminder_at"` // HH:MM
	ReminderTimezone   string        `toml:"reminder_timezone"`
	ReminderSweep      time.Duration `toml:"-"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
	LogJSON  bool   `toml:"log_json"`

	// TokenTTLRaw and ReminderSweepRaw mirror the durations for the config file, e.g. "168h".
	TokenTTLRaw      string `toml:"token_ttl"`
	ReminderSweepRaw string `toml:"reminder_sweep"`
}

const minSecretLen = 32

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Env:                "development",
		Port:               3000,
		DatabaseURL:        "timeblocker.db",
		CORSOrigins:        []string{"*"},
		TokenTTL:           7 * 24 * time.Hour,
		PlanningReminderAt: "09:00",
		ReminderTimezone:   "UTC",
		ReminderSweep:      10 * time.Minute,
		LogLevel:           "info",
	}
}

// Load reads the optional TOML file named by TIMEBLOCKER_CONFIG, then applies
// environment variables on top, then validates.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("TIMEBLOCKER_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if cfg.TokenTTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("invalid token_ttl %q: %w", cfg.TokenTTLRaw, err)
		}
		cfg.TokenTTL = ttl
	}
	if cfg.ReminderSweepRaw != "" {
		d, err := time.ParseDuration(cfg.ReminderSweepRaw)
		if err != nil {
			return fmt.Errorf("invalid reminder_sweep %q: %w", cfg.ReminderSweepRaw, err)
		}
		cfg.ReminderSweep = d
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("ENV", &cfg.Env)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("VAPID_PUBLIC_KEY", &cfg.VAPIDPublicKey)
	str("VAPID_PRIVATE_KEY", &cfg.VAPIDPrivateKey)
	str("VAPID_EMAIL", &cfg.VAPIDEmail)
	str("TELEGRAM_TOKEN", &cfg.TelegramToken)
	str("PLANNING_REMINDER_AT", &cfg.PlanningReminderAt)
	str("REMINDER_TIMEZONE", &cfg.ReminderTimezone)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(getenv("TOKEN_TTL")); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_TTL %q: %w", v, err)
		}
		cfg.TokenTTL = ttl
	}
	if v := strings.TrimSpace(getenv("REMINDER_SWEEP_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REMINDER_SWEEP_INTERVAL %q: %w", v, err)
		}
		cfg.ReminderSweep = d
	}
	if v := strings.TrimSpace(getenv("CORS_ORIGINS")); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(getenv("LOG_JSON")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_JSON %q", v)
		}
		cfg.LogJSON = b
	}
	return nil
}

// Validate checks required values and formats.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters long", minSecretLen))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port number %d", c.Port))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token TTL must be positive"))
	}
	if c.PushEnabled() {
		if addr := strings.TrimPrefix(c.VAPIDEmail, "mailto:"); !strings.Contains(addr, "@") {
			errs = append(errs, errors.New("VAPID_EMAIL must be an email address, optionally as a mailto: URI"))
		}
	} else if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together"))
	}
	if _, _, err := ParseClock(c.PlanningReminderAt); err != nil {
		errs = append(errs, fmt.Errorf("PLANNING_REMINDER_AT: %w", err))
	}
	if c.ReminderSweep < 0 || (c.ReminderSweep > 0 && c.ReminderSweep < time.Second) {
		errs = append(errs, errors.New("REMINDER_SWEEP_INTERVAL must be zero or at least 1s"))
	}
	if _, err := time.LoadLocation(c.ReminderTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid REMINDER_TIMEZONE %q", c.ReminderTimezone))
	}
	return errors.Join(errs...)
}

// PushEnabled reports whether both VAPID keys are configured.
func (c Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// JSONLogs reports whether logs are written as JSON. Production always is.
func (c Config) JSONLogs() bool {
	return c.LogJSON || c.IsProduction()
}

// WildcardCORS reports whether any origin may call the API.
func (c Config) WildcardCORS() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ParseClock parses an HH:MM time of day.
func ParseClock(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour, minute, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
