package firestore

import (
	"context"
	"sync"
)

type stockJournalKey struct{}

type stockAdjustment struct {
	productID string
	delta     int
}

// stockJournal remembers committed stock adjustments so a failed unit of work can reverse them.
type stockJournal struct {
	mu      sync.Mutex
	entries []stockAdjustment
}

func withStockJournal(ctx context.Context) (context.Context, *stockJournal) {
	journal := &stockJournal{}
	return context.WithValue(ctx, stockJournalKey{}, journal), journal
}

func journalFrom(ctx context.Context) *stockJournal {
	journal, _ := ctx.Value(stockJournalKey{}).(*stockJournal)
	return journal
}

func (j *stockJournal) record(productID string, delta int) {
	if j == nil || delta == 0 {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, stockAdjustment{productID: productID, delta: delta})
	j.mu.Unlock()
}

// reversed returns the recorded adjustments newest first.
func (j *stockJournal) reversed() []stockAdjustment {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]stockAdjustment, 0, len(j.entries))
	for i := len(j.entries) - 1; i >= 0; i-- {
		out = append(out, j.entries[i])
	}
	return out
}
