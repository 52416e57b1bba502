package database

import (
	"fmt"
	"testing"

	"shrike/internal/domain"

	"gorm.io/driver/sqlite"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())

	handler, err := SetupDB(
		WithDialector(sqlite.Open(dsn)),
		WithMigrations(
			domain.User{},
			domain.IPDetails{},
			domain.ResponseCode{},
			domain.IPResponseCode{},
		),
	)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := handler.DB().Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("set busy timeout: %v", err)
	}

	return handler
}
