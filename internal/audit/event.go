package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/bredsky212/Logiq212/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes a structured audit line enriched with the request id.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("type", "audit"))
	if rid := RequestIDFromContext(ctx); rid != "" {
		all = append(all, zap.String("request_id", rid))
	}
	all = append(all, fields...)
	obs.Logger().Info(event, all...)
}
