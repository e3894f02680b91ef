package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// SequenceKind selects which document family a number is drawn for.
type SequenceKind string

const (
	SequenceInvoice SequenceKind = "invoices"
	SequenceOrder   SequenceKind = "orders"
)

// NumberSequencer hands out the next sequence value inside the numbering window that contains now.
// Invoice windows are calendar months, order windows are calendar days (UTC).
type NumberSequencer interface {
	Next(ctx context.Context, kind SequenceKind, now time.Time) (int64, error)
}

// SequenceSource reports what a document family has already used inside a numbering window.
type SequenceSource interface {
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
	// HighestNumberWithPrefix returns the greatest stored number starting with prefix, or "".
	HighestNumberWithPrefix(ctx context.Context, prefix string) (string, error)
}

// CountingSequencer derives the next value from the documents already created in the window: the
// count plus one, raised past the highest live number so a deleted document never hands its
// successor's number out again. Two writers racing in the same window can still draw the same
// value; the stores reject the duplicate number on insert.
type CountingSequencer struct {
	orders   SequenceSource
	invoices SequenceSource
}

// NewCountingSequencer constructs the count based sequencer.
func NewCountingSequencer(orders, invoices SequenceSource) (*CountingSequencer, error) {
	if orders == nil || invoices == nil {
		return nil, errors.New("counting sequencer: order and invoice sources are required")
	}
	return &CountingSequencer{orders: orders, invoices: invoices}, nil
}

func (s *CountingSequencer) Next(ctx context.Context, kind SequenceKind, now time.Time) (int64, error) {
	var source SequenceSource
	switch kind {
	case SequenceInvoice:
		source = s.invoices
	case SequenceOrder:
		source = s.orders
	default:
		return 0, fmt.Errorf("%w: unknown sequence %q", domain.ErrValidation, kind)
	}

	from, to := sequenceWindow(kind, now)
	count, err := source.CountCreatedBetween(ctx, from, to)
	if err != nil {
		return 0, mapRepositoryError(string(kind)+".count", string(kind)+" sequence", err)
	}
	prefix := numberPrefix(kind, now)
	highest, err := source.HighestNumberWithPrefix(ctx, prefix)
	if err != nil {
		return 0, mapRepositoryError(string(kind)+".highest", string(kind)+" sequence", err)
	}
	if used, ok := sequenceOf(highest, prefix); ok && used > count {
		count = used
	}
	if count >= repositories.MaxSequencePerWindow {
		window := string(kind) + ":" + strings.TrimSuffix(prefix, "-")
		return 0, domain.DatabaseError(string(kind)+".next", repositories.WindowExhausted(window, repositories.MaxSequencePerWindow))
	}
	return count + 1, nil
}

// CounterSequencer draws values from atomic counters keyed by kind and window, e.g.
// "invoices:202410".
type CounterSequencer struct {
	counters repositories.CounterRepository
}

// NewCounterSequencer constructs a sequencer backed by the counter store.
func NewCounterSequencer(counters repositories.CounterRepository) (*CounterSequencer, error) {
	if counters == nil {
		return nil, errors.New("counter sequencer: counter repository is required")
	}
	return &CounterSequencer{counters: counters}, nil
}

func (s *CounterSequencer) Next(ctx context.Context, kind SequenceKind, now time.Time) (int64, error) {
	now = now.UTC()
	var counterID string
	switch kind {
	case SequenceInvoice:
		counterID = fmt.Sprintf("%s:%04d%02d", kind, now.Year(), int(now.Month()))
	case SequenceOrder:
		counterID = fmt.Sprintf("%s:%04d%02d%02d", kind, now.Year(), int(now.Month()), now.Day())
	default:
		return 0, fmt.Errorf("%w: unknown sequence %q", domain.ErrValidation, kind)
	}

	value, err := s.counters.Next(ctx, counterID, 1)
	if err != nil {
		var numberingErr *repositories.NumberingError
		if errors.As(err, &numberingErr) {
			switch numberingErr.Code {
			case repositories.NumberingInvalidWindow:
				return 0, fmt.Errorf("%w: %s", domain.ErrValidation, numberingErr.Error())
			case repositories.NumberingWindowExhausted:
				return 0, domain.DatabaseError("counters.next", err)
			}
		}
		return 0, mapRepositoryError("counters.next", "counter "+counterID, err)
	}
	return value, nil
}

// FormatInvoiceNumber renders INV-{YY}-{MM}-{NNNN}.
func FormatInvoiceNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("%s%04d", numberPrefix(SequenceInvoice, now), seq)
}

// FormatOrderNumber renders ORD-{YYYYMMDD}-{NNNN}.
func FormatOrderNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("%s%04d", numberPrefix(SequenceOrder, now), seq)
}

// numberPrefix is the window part shared by every number drawn for kind at now.
func numberPrefix(kind SequenceKind, now time.Time) string {
	now = now.UTC()
	if kind == SequenceOrder {
		return fmt.Sprintf("ORD-%04d%02d%02d-", now.Year(), int(now.Month()), now.Day())
	}
	return fmt.Sprintf("INV-%02d-%02d-", now.Year()%100, int(now.Month()))
}

func sequenceOf(number, prefix string) (int64, bool) {
	if number == "" || !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

func sequenceWindow(kind SequenceKind, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	if kind == SequenceOrder {
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 0, 1)
	}
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
