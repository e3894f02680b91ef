package firestore

import (
	"context"
	"testing"
)

func TestStockJournalRecordsOnlyInsideUnitOfWork(t *testing.T) {
	journalFrom(context.Background()).record("prod_tomato", -2)

	ctx, journal := withStockJournal(context.Background())
	journalFrom(ctx).record("prod_tomato", -2)
	journalFrom(ctx).record("prod_basil", 0)
	journalFrom(ctx).record("prod_basil", -1)

	got := journal.reversed()
	if len(got) != 2 {
		t.Fatalf("expected two recorded adjustments, got %+v", got)
	}
	if got[0].productID != "prod_basil" || got[1].productID != "prod_tomato" {
		t.Fatalf("expected newest first, got %+v", got)
	}
}
