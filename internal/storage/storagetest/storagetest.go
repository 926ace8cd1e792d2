// Package storagetest opens throwaway SQLite-backed gateways for tests of the
// packages that sit on top of storage.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"chatline/backend/internal/models"
	"chatline/backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB creates an isolated in-memory SQLite database with the schema migrated.
// A single connection keeps every goroutine on the same in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := storage.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// NewService returns a gateway over NewDB without Redis.
func NewService(t testing.TB) *storage.Service {
	t.Helper()
	return storage.NewStorageService(NewDB(t), nil)
}

// SeedUser inserts a user with the given name and a derived email.
func SeedUser(t testing.TB, s *storage.Service, name string) *models.User {
	t.Helper()

	user := &models.User{FullName: name, Email: name + "@example.com", PasswordHash: "hash"}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user %s: %v", name, err)
	}
	return user
}
