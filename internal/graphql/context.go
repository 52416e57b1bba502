package graphql

import (
	"context"
	"errors"
)

type contextKey string

const (
	userIDKey  contextKey = "graphql.userID"
	authErrKey contextKey = "graphql.authError"
)

var ErrUnauthenticated = errors.New("unauthenticated")

func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithAuthError records why transport-level authentication failed so the
// resolvers can return that message instead of a generic one.
func WithAuthError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, authErrKey, err)
}

func UserIDFromContext(ctx context.Context) (uint, error) {
	if ctx == nil {
		return 0, ErrUnauthenticated
	}
	if raw, ok := ctx.Value(userIDKey).(uint); ok && raw > 0 {
		return raw, nil
	}
	if err, ok := ctx.Value(authErrKey).(error); ok && err != nil {
		return 0, err
	}
	return 0, ErrUnauthenticated
}
