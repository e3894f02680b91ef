package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logEvent := EventLogger(zap.New(core))

	logEvent(context.Background(), "notification.dispatch.failed", map[string]any{"order": "ord_1"})
	logEvent(context.Background(), "invoice.created", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected failures at warn, got %s", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["event"] != "notification.dispatch.failed" || fields["order"] != "ord_1" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if entries[1].Level != zapcore.InfoLevel {
		t.Fatalf("expected info, got %s", entries[1].Level)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	reqCore, reqLogs := observer.New(zapcore.InfoLevel)
	logEvent := EventLogger(zap.New(baseCore))

	ctx := WithLogger(context.Background(), zap.New(reqCore))
	logEvent(ctx, "order.created", nil)

	if baseLogs.Len() != 0 || reqLogs.Len() != 1 {
		t.Fatalf("expected request logger to receive the entry, base=%d request=%d", baseLogs.Len(), reqLogs.Len())
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("shouting")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug disabled at default level")
	}
}
