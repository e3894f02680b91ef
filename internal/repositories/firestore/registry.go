package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// ReadinessCollections are the collections the desk cannot serve requests without.
var ReadinessCollections = []string{ordersCollection, invoicesCollection, productsCollection, clientsCollection}

// Registry wires every Firestore repository over one provider.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	invoices *InvoiceRepository
	products *ProductRepository
	clients  *ClientRepository
	counters *CounterRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs all repositories bound to provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	invoices, err := NewInvoiceRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	clients, err := NewClientRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		orders:   orders,
		invoices: invoices,
		products: products,
		clients:  clients,
		counters: counters,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Invoices() repositories.InvoiceRepository { return r.invoices }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Clients() repositories.ClientRepository   { return r.clients }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// RunInTx runs fn as a compensating unit of work. Each stock adjustment commits in its own
// transaction; when fn fails the adjustments it made are reversed newest first. Compensation
// failures are joined onto the returned error.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, journal := withStockJournal(ctx)
	err := fn(txCtx)
	if err == nil {
		return nil
	}

	undoCtx := context.WithoutCancel(ctx)
	var undoErrs []error
	for _, adj := range journal.reversed() {
		if _, undoErr := r.products.AdjustStock(undoCtx, adj.productID, -adj.delta); undoErr != nil {
			undoErrs = append(undoErrs, fmt.Errorf("revert stock %s by %d: %w", adj.productID, -adj.delta, undoErr))
		}
	}
	if len(undoErrs) > 0 {
		return errors.Join(append([]error{err}, undoErrs...)...)
	}
	return err
}
