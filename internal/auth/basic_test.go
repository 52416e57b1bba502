package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"shrike/internal/database"
	"shrike/internal/domain"
	"shrike/internal/support"

	"gorm.io/driver/sqlite"
)

func setupUserStore(t *testing.T) *database.Handler {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	store, err := database.SetupDB(
		database.WithDialector(sqlite.Open(dsn)),
		database.WithMigrations(domain.User{}),
	)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return store
}

func seedUser(t *testing.T, store *database.Handler, email, password string) {
	t.Helper()

	hashed, err := support.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := domain.User{Email: email, Password: hashed, Role: "user"}
	if err := store.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func basicHeader(credentials string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

func TestAuthenticateBasic(t *testing.T) {
	store := setupUserStore(t)
	seedUser(t, store, "user@example.com", "correct-horse")
	ctx := context.Background()

	user, err := AuthenticateBasic(ctx, store, basicHeader("user@example.com:correct-horse"))
	if err != nil {
		t.Fatalf("valid credentials rejected: %v", err)
	}
	if user.Email != "user@example.com" {
		t.Fatalf("authenticated user = %q", user.Email)
	}
}

func TestAuthenticateBasicFailures(t *testing.T) {
	store := setupUserStore(t)
	seedUser(t, store, "user@example.com", "correct-horse")
	ctx := context.Background()

	cases := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", ErrAuthHeaderMissing},
		{"not basic", "Bearer abc", ErrAuthHeaderInvalid},
		{"undecodable payload", "Basic %%%not-base64%%%", ErrAuthHeaderUndecodable},
		{"password missing", basicHeader("user@example.com"), ErrPasswordMissing},
		{"unknown user", basicHeader("ghost@example.com:correct-horse"), ErrInvalidCredentials},
		{"wrong password", basicHeader("user@example.com:wrong"), ErrInvalidCredentials},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AuthenticateBasic(ctx, store, tc.header)
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}
