package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
	"github.com/hanko-field/orderdesk/internal/repositories/memory"
)

type stubSequenceSource struct {
	count    int64
	highest  string
	err      error
	from, to time.Time
	prefix   string
}

func (s *stubSequenceSource) CountCreatedBetween(_ context.Context, from, to time.Time) (int64, error) {
	s.from, s.to = from, to
	return s.count, s.err
}

func (s *stubSequenceSource) HighestNumberWithPrefix(_ context.Context, prefix string) (string, error) {
	s.prefix = prefix
	return s.highest, nil
}

func TestFormatNumbers(t *testing.T) {
	at := time.Date(2024, 3, 7, 23, 0, 0, 0, time.UTC)
	if got := FormatInvoiceNumber(at, 12); got != "INV-24-03-0012" {
		t.Fatalf("unexpected invoice number %s", got)
	}
	if got := FormatOrderNumber(at, 3); got != "ORD-20240307-0003" {
		t.Fatalf("unexpected order number %s", got)
	}
}

func TestCountingSequencerWindows(t *testing.T) {
	orders := &stubSequenceSource{count: 4}
	invoices := &stubSequenceSource{count: 9}
	seq, err := NewCountingSequencer(orders, invoices)
	if err != nil {
		t.Fatalf("new sequencer: %v", err)
	}

	at := time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC)
	next, err := seq.Next(context.Background(), SequenceInvoice, at)
	if err != nil || next != 10 {
		t.Fatalf("expected invoice sequence 10, got %d (%v)", next, err)
	}
	if invoices.prefix != "INV-24-12-" {
		t.Fatalf("unexpected invoice prefix %q", invoices.prefix)
	}
	if !invoices.from.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) || !invoices.to.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected month window %s - %s", invoices.from, invoices.to)
	}

	next, err = seq.Next(context.Background(), SequenceOrder, at)
	if err != nil || next != 5 {
		t.Fatalf("expected order sequence 5, got %d (%v)", next, err)
	}
	if orders.to.Sub(orders.from) != 24*time.Hour {
		t.Fatalf("expected a one day window, got %s", orders.to.Sub(orders.from))
	}

	invoices.err = errors.New("deadline")
	if _, err := seq.Next(context.Background(), SequenceInvoice, at); !errors.Is(err, domain.ErrDatabase) {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestCountingSequencerSkipsPastHighestLiveNumber(t *testing.T) {
	orders := &stubSequenceSource{count: 1, highest: "ORD-20241231-0002"}
	invoices := &stubSequenceSource{count: 3, highest: "INV-24-12-0002"}
	seq, _ := NewCountingSequencer(orders, invoices)
	at := time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC)

	if next, err := seq.Next(context.Background(), SequenceOrder, at); err != nil || next != 3 {
		t.Fatalf("expected order sequence 3 after a deletion, got %d (%v)", next, err)
	}
	if next, err := seq.Next(context.Background(), SequenceInvoice, at); err != nil || next != 4 {
		t.Fatalf("count wins when it is higher, got %d (%v)", next, err)
	}

	invoices.highest = "INV-24-12-draft"
	if next, _ := seq.Next(context.Background(), SequenceInvoice, at); next != 4 {
		t.Fatalf("unparsable numbers are ignored, got %d", next)
	}
}

func TestCounterSequencerKeysByWindow(t *testing.T) {
	store := memory.NewStore()
	seq, err := NewCounterSequencer(store.Counters())
	if err != nil {
		t.Fatalf("new sequencer: %v", err)
	}
	ctx := context.Background()
	march := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, SequenceInvoice, march)
		if err != nil || got != want {
			t.Fatalf("expected %d, got %d (%v)", want, got, err)
		}
	}
	if got, _ := seq.Next(ctx, SequenceInvoice, april); got != 1 {
		t.Fatalf("new month must restart the sequence, got %d", got)
	}
	if got, _ := seq.Next(ctx, SequenceOrder, march); got != 1 {
		t.Fatalf("orders use their own counter, got %d", got)
	}
}

type failingCounterRepo struct{ err error }

func (f failingCounterRepo) Next(context.Context, string, int64) (int64, error) { return 0, f.err }

func TestCounterSequencerMapsNumberingErrors(t *testing.T) {
	seq, _ := NewCounterSequencer(failingCounterRepo{err: repositories.InvalidWindow("orders:", "counter id is required")})
	if _, err := seq.Next(context.Background(), SequenceOrder, fixtureNow); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	seq, _ = NewCounterSequencer(failingCounterRepo{err: repositories.WindowExhausted("orders:20241015", repositories.MaxSequencePerWindow)})
	if _, err := seq.Next(context.Background(), SequenceOrder, fixtureNow); !errors.Is(err, domain.ErrDatabase) {
		t.Fatalf("expected database error for an exhausted window, got %v", err)
	}
}

func TestCountingSequencerStopsAtWindowLimit(t *testing.T) {
	orders := &stubSequenceSource{count: 12, highest: "ORD-20241231-9999"}
	seq, _ := NewCountingSequencer(orders, &stubSequenceSource{})

	_, err := seq.Next(context.Background(), SequenceOrder, time.Date(2024, 12, 31, 9, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrDatabase) {
		t.Fatalf("expected database error, got %v", err)
	}
	var numberingErr *repositories.NumberingError
	if !errors.As(err, &numberingErr) || numberingErr.Code != repositories.NumberingWindowExhausted {
		t.Fatalf("expected exhausted window, got %v", err)
	}
	if numberingErr.Window != "orders:ORD-20241231" {
		t.Fatalf("unexpected window %q", numberingErr.Window)
	}
}
