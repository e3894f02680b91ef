package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories/memory"
)

var fixtureNow = time.Date(2024, 10, 15, 9, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: fixtureNow}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%04d", n)
	}
}

func dec(t *testing.T, literal string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(literal)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", literal, err)
	}
	return value
}

func decPtr(t *testing.T, literal string) *decimal.Decimal {
	t.Helper()
	value := dec(t, literal)
	return &value
}

func seededStore() *memory.Store {
	store := memory.NewStore()
	store.PutProduct(domain.Product{
		ID: "prod_tomato", Name: "Tomatoes", Unit: "kg", Price: decimal.NewFromInt(10),
		StockQuantity: 20, IsAvailable: true, Variants: []string{"roma", "cherry"},
	})
	store.PutProduct(domain.Product{
		ID: "prod_basil", Name: "Basil", Unit: "bunch", Price: decimal.NewFromInt(5),
		StockQuantity: 6, IsAvailable: true,
	})
	store.PutProduct(domain.Product{
		ID: "prod_truffle", Name: "Truffle", Unit: "g", Price: decimal.NewFromInt(90),
		StockQuantity: 3, IsAvailable: false,
	})
	store.PutClient(domain.ClientSnapshot{
		ID: "cli_ada", Name: "Ada Market", Email: "ada@example.com", Phone: "+1 555 0100",
		Address: &domain.Address{Line1: "1 Harbour St", City: "Portsmouth", Country: "GB"},
	})
	return store
}

// scenarioItems are two tomatoes at 10 and one basil at 5, a subtotal of 25.
func scenarioItems() []OrderItemInput {
	return []OrderItemInput{
		{ProductID: "prod_tomato", Quantity: 2},
		{ProductID: "prod_basil", Quantity: 1},
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

func (p *recordingPublisher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

type recordingTransport struct {
	mu       sync.Mutex
	messages []Message
	calls    int
	sendFn   func(int, Message) error
}

func (t *recordingTransport) Send(_ context.Context, msg Message) error {
	t.mu.Lock()
	t.calls++
	call := t.calls
	fn := t.sendFn
	t.mu.Unlock()
	if fn != nil {
		if err := fn(call, msg); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	return nil
}

func (t *recordingTransport) sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

type stubRenderer struct {
	err error
}

func (r stubRenderer) Render(_ context.Context, invoice domain.Invoice) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-" + invoice.InvoiceNumber), nil
}

type transientErr struct{ msg string }

func (e transientErr) Error() string { return e.msg }
func (e transientErr) Transient() bool { return true }

func noSleep(context.Context, time.Duration) error { return nil }
