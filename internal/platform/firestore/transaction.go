package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc is executed within a Firestore transaction. It may run more than once.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxProfile bounds the retries and wall time of one class of desk transaction.
type TxProfile struct {
	Name     string
	Attempts int
	Timeout  time.Duration
}

var (
	// TxDocumentWrite covers version checked order and invoice writes, including number claims.
	TxDocumentWrite = TxProfile{Name: "document.write", Attempts: 5, Timeout: 10 * time.Second}
	// TxStock covers single product stock adjustments. Popular products see the most contention.
	TxStock = TxProfile{Name: "stock.adjust", Attempts: 10, Timeout: 10 * time.Second}
	// TxNumbering covers numbering window counter increments.
	TxNumbering = TxProfile{Name: "numbering.next", Attempts: 10, Timeout: 5 * time.Second}
	// TxIdempotency covers idempotency key claims and completions.
	TxIdempotency = TxProfile{Name: "idempotency", Attempts: 3, Timeout: 5 * time.Second}
)

// bound derives the transaction context. A caller deadline tighter than the profile timeout wins.
func (p TxProfile) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = TxDocumentWrite.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (p TxProfile) attempts() int {
	if p.Attempts > 0 {
		return p.Attempts
	}
	return TxDocumentWrite.Attempts
}

// RunTransaction runs fn under profile on the provider's client. Errors returned by fn pass
// through unchanged so repositories can attach their own operation names.
func (p *Provider) RunTransaction(ctx context.Context, profile TxProfile, fn TxFunc) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	txCtx, cancel := profile.bound(ctx)
	defer cancel()
	return client.RunTransaction(txCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(profile.attempts()))
}
