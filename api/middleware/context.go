package middleware

import (
	"context"
	"strings"

	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
)

type contextKey string

const (
	ctxUserID          contextKey = "user_id"
	ctxBrowsingSession contextKey = "browsing_session"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the buyer identity into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// CallerID is the identity lookup handed to the reconciliation coordinator.
func CallerID(ctx context.Context) (string, error) {
	id := strings.TrimSpace(UserIDFromContext(ctx))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	return id, nil
}

func BrowsingSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxBrowsingSession).(string); ok {
		return v
	}
	return ""
}

func WithBrowsingSession(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxBrowsingSession, id)
}
