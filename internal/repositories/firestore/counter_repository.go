package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const countersCollection = "counters"

// windowDocument is the counter for one numbering window. Limit lowers the window ceiling below
// repositories.MaxSequencePerWindow when an operator sets it.
type windowDocument struct {
	Kind      string    `firestore:"kind"`
	Window    string    `firestore:"window"`
	Value     int64     `firestore:"value"`
	Limit     *int64    `firestore:"limit,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out numbering window values. Documents are keyed "{kind}:{window}",
// e.g. "invoices:202410" or "orders:20241015".
type CounterRepository struct {
	provider *pfirestore.Provider
	windows  *pfirestore.BaseRepository[windowDocument]
	clock    func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		windows:  pfirestore.NewBaseRepository[windowDocument](provider, countersCollection, nil, nil),
		clock:    time.Now,
	}, nil
}

// splitWindowKey separates "{kind}:{window}" into its parts.
func splitWindowKey(key string) (kind, window string, err error) {
	kind, window, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok || kind == "" || window == "" {
		return "", "", repositories.InvalidWindow(key, "expected {kind}:{window}")
	}
	return kind, window, nil
}

// Next advances the window keyed counterID by step (at least one) and returns the new value.
// The first draw from a window creates its document.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	kind, window, err := splitWindowKey(counterID)
	if err != nil {
		return 0, err
	}
	if step < 0 {
		return 0, repositories.InvalidWindow(counterID, fmt.Sprintf("step must be positive, got %d", step))
	}
	if step == 0 {
		step = 1
	}

	var drawn int64
	err = r.provider.RunTransaction(ctx, pfirestore.TxNumbering, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.windows.DocumentRef(ctx, counterID)
		if err != nil {
			return err
		}
		doc := windowDocument{Kind: kind, Window: window}
		snapshot, err := tx.Get(ref)
		switch {
		case err == nil:
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("decode numbering window %s: %w", counterID, err)
			}
		case !pfirestore.IsNotFound(err):
			return err
		}

		limit := repositories.MaxSequencePerWindow
		if doc.Limit != nil && *doc.Limit < limit {
			limit = *doc.Limit
		}
		if doc.Value+step > limit {
			return repositories.WindowExhausted(counterID, limit)
		}
		doc.Value += step
		doc.UpdatedAt = r.clock().UTC()
		drawn = doc.Value
		return tx.Set(ref, doc)
	})
	if err != nil {
		var numberingErr *repositories.NumberingError
		if errors.As(err, &numberingErr) {
			return 0, numberingErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return drawn, nil
}
