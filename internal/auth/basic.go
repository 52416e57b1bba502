package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"shrike/internal/database"
	"shrike/internal/domain"
	"shrike/internal/support"
)

// These messages are part of the public API surface; clients match on them.
var (
	ErrAuthHeaderMissing     = errors.New("Authorization header is missing")
	ErrAuthHeaderInvalid     = errors.New("Invalid Authorization header")
	ErrAuthHeaderUndecodable = errors.New("Unable to decode Authorization header")
	ErrPasswordMissing       = errors.New("Password is missing from Authorization header")
	ErrInvalidCredentials    = errors.New("Invalid username and/or password")
)

// AuthenticateBasic resolves an "Authorization: Basic ..." header against the
// users table. The credential pair is email:password.
func AuthenticateBasic(ctx context.Context, store *database.Handler, header string) (domain.User, error) {
	if header == "" {
		return domain.User{}, ErrAuthHeaderMissing
	}
	if !strings.HasPrefix(header, "Basic ") {
		return domain.User{}, ErrAuthHeaderInvalid
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return domain.User{}, ErrAuthHeaderUndecodable
	}

	email, password, found := strings.Cut(string(payload), ":")
	if !found {
		return domain.User{}, ErrPasswordMissing
	}

	user, err := store.GetUserByEmail(ctx, email)
	if err != nil || !support.CheckPasswordHash(password, user.Password) {
		return domain.User{}, ErrInvalidCredentials
	}

	return user, nil
}
