package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"timeblocker/internal/model"
)

// NewDB opens PostgreSQL for postgres:// URLs and SQLite for anything else, then runs migrations.
func NewDB(dsn string, l *log.Logger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "timeblocker.db"
	}

	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		l.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel}),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if isSQLiteMemory(dsn) {
		// Every connection to an unnamed memory database is a fresh database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate brings the schema up to date.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.TimeBlock{}); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	return nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(dsn), nil
	}
	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}
	return sqlite.Open(dsn), nil
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

func isSQLiteMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if isSQLiteMemory(dsn) {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
