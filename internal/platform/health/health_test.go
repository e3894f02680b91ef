package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckerCollect(t *testing.T) {
	now := time.Date(2024, time.October, 15, 9, 30, 0, 0, time.UTC)
	checker, err := NewChecker([]Probe{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "storage", Check: func(context.Context) error { return errors.New("bucket missing") }},
	}, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	report := checker.Collect(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Checks["firestore"].Status != StatusOK {
		t.Fatalf("expected firestore ok, got %+v", report.Checks["firestore"])
	}
	if report.Checks["storage"].Detail != "bucket missing" {
		t.Fatalf("unexpected storage detail %+v", report.Checks["storage"])
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestCheckerTimeoutIsError(t *testing.T) {
	checker, err := NewChecker([]Probe{{
		Name:    "pubsub",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}}, nil)
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	if report := checker.Collect(context.Background()); report.Status != StatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
}

func TestNewCheckerRejectsUnnamedProbe(t *testing.T) {
	if _, err := NewChecker([]Probe{{Check: func(context.Context) error { return nil }}}, nil); err == nil {
		t.Fatalf("expected error for unnamed probe")
	}
}
