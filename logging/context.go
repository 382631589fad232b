package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	orgIDKey     contextKey = "org_id"
)

// NewRequestID returns a fresh request identifier.
func NewRequestID() string {
	return uuid.New().String()
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func ContextWithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

func OrgIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(orgIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the request and org ids carried by ctx.
//
//	logging.Ctx(ctx).Info().Msg("processing request")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if org := OrgIDFromContext(ctx); org != "" {
		lc = lc.Str("org_id", org)
	}
	l := lc.Logger()
	return &l
}
