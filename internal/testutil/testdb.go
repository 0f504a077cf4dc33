package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"timeblocker/internal/logger"
	"timeblocker/internal/repository"
)

// NewTestDB creates a private in-memory SQLite database with the schema applied.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.NewDB(dsn, logger.Discard())
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
