package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Invoices() InvoiceRepository
	Products() ProductRepository
	Clients() ClientRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// It is a best-effort wrapper: only the stock adjustment path relies on it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	ClientID string
	Status   []domain.OrderStatus
	Limit    int
}

// OrderRepository persists order documents.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update replaces the document when its stored version equals expectedVersion and
	// stores order with Version = expectedVersion+1. A mismatch is a conflict.
	Update(ctx context.Context, order domain.Order, expectedVersion int64) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	// CountCreatedBetween counts orders with from <= createdAt < to.
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
	// HighestNumberWithPrefix returns the greatest order number starting with prefix, or "" when
	// none exists.
	HighestNumberWithPrefix(ctx context.Context, prefix string) (string, error)
}

// InvoiceListFilter narrows invoice listings.
type InvoiceListFilter struct {
	ClientID string
	Status   []domain.InvoiceStatus
	// DueBefore, when set, keeps invoices whose due date is strictly before it.
	DueBefore *time.Time
	Limit     int
}

// InvoiceRepository persists invoice documents.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	Update(ctx context.Context, invoice domain.Invoice, expectedVersion int64) error
	Delete(ctx context.Context, invoiceID string) error
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]domain.Invoice, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
	HighestNumberWithPrefix(ctx context.Context, prefix string) (string, error)
	// SetPDFObject records the archived PDF location without touching the version, so it never
	// races ledger updates.
	SetPDFObject(ctx context.Context, invoiceID, object string) error
}

// ProductRepository reads catalog snapshots and adjusts stock.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	StockAdjuster
}

// StockAdjuster applies a stock delta atomically and returns the updated product.
// Implementations reject adjustments that would drive stock negative with a conflict error.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error)
}

// ClientRepository resolves standalone client records.
type ClientRepository interface {
	FindByID(ctx context.Context, clientID string) (domain.ClientSnapshot, error)
}

// CounterRepository provides atomic sequences keyed by counter id.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}
