package services

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/models"
)

// openTestDB creates a SQLite in-memory DB unique per test with the
// security tables migrated.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsnName := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_journal_mode=WAL&_busy_timeout=5000", dsnName)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.BlockedIP{},
		&models.TrustedIP{},
		&models.SecurityEvent{},
		&models.RateLimitAudit{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}
