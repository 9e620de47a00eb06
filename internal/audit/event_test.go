package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bredsky212/Logiq212/internal/obs"
)

func TestLogEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	defer obs.SetLogger(zap.New(core))()

	ctx := WithRequestID(context.Background(), "req-123")
	LogEvent(ctx, "audit.test", zap.String("foo", "bar"))

	if logs.Len() != 1 {
		t.Fatalf("expected one log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "audit.test" {
		t.Fatalf("unexpected message: %q", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["type"] != "audit" {
		t.Fatalf("unexpected type: %v", fields["type"])
	}
	if fields["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", fields["request_id"])
	}
	if fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", fields)
	}
}

func TestLogEventSkipsEmptyName(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	defer obs.SetLogger(zap.New(core))()

	LogEvent(context.Background(), "   ")
	if logs.Len() != 0 {
		t.Fatalf("expected no output for empty event")
	}
}
