package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// Store is an in-memory Registry useful for tests and local development.
// Each document is replaced atomically under a single mutex.
type Store struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	invoices map[string]domain.Invoice
	products map[string]domain.Product
	clients  map[string]domain.ClientSnapshot
	counters map[string]int64
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		orders:   make(map[string]domain.Order),
		invoices: make(map[string]domain.Invoice),
		products: make(map[string]domain.Product),
		clients:  make(map[string]domain.ClientSnapshot),
		counters: make(map[string]int64),
	}
}

// PutProduct seeds or replaces a catalog product.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product.Variants = slices.Clone(product.Variants)
	s.products[product.ID] = product
}

// PutClient seeds or replaces a client record.
func (s *Store) PutClient(client domain.ClientSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Orders() repositories.OrderRepository { return orderRepo{s} }
func (s *Store) Invoices() repositories.InvoiceRepository { return invoiceRepo{s} }
func (s *Store) Products() repositories.ProductRepository { return productRepo{s} }
func (s *Store) Clients() repositories.ClientRepository { return clientRepo{s} }
func (s *Store) Counters() repositories.CounterRepository { return counterRepo{s} }

type txJournalKey struct{}

type stockDelta struct {
	productID string
	delta     int
}

// txJournal collects the stock adjustments made by one unit of work.
type txJournal struct {
	mu      sync.Mutex
	entries []stockDelta
}

func (j *txJournal) record(productID string, delta int) {
	if j == nil || delta == 0 {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, stockDelta{productID: productID, delta: delta})
	j.mu.Unlock()
}

// RunInTx runs fn and, when it fails, reverses the stock adjustments fn made, newest first.
// Adjustments from other callers are left alone. Orders and invoices are not rolled back; their
// writes are individually atomic.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	journal := &txJournal{}
	if err := fn(context.WithValue(ctx, txJournalKey{}, journal)); err != nil {
		journal.mu.Lock()
		entries := slices.Clone(journal.entries)
		journal.mu.Unlock()

		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(entries) - 1; i >= 0; i-- {
			adj := entries[i]
			product, ok := s.products[adj.productID]
			if !ok {
				continue
			}
			product.StockQuantity -= adj.delta
			s.products[adj.productID] = product
		}
		return err
	}
	return nil
}

type orderRepo struct{ s *Store }

func (r orderRepo) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.orders[order.ID]; exists {
		return conflict("orders.insert", "order %s already exists", order.ID)
	}
	r.s.orders[order.ID] = order.Clone()
	return nil
}

func (r orderRepo) Update(_ context.Context, order domain.Order, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.orders[order.ID]
	if !ok {
		return notFound("orders.update", order.ID)
	}
	if current.Version != expectedVersion {
		return conflict("orders.update", "order %s version %d, expected %d", order.ID, current.Version, expectedVersion)
	}
	stored := order.Clone()
	stored.Version = expectedVersion + 1
	r.s.orders[order.ID] = stored
	return nil
}

func (r orderRepo) Delete(_ context.Context, orderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[orderID]; !ok {
		return notFound("orders.delete", orderID)
	}
	delete(r.s.orders, orderID)
	return nil
}

func (r orderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return order.Clone(), nil
}

func (r orderRepo) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Order, 0, len(r.s.orders))
	for _, order := range r.s.orders {
		if id := strings.TrimSpace(filter.ClientID); id != "" && order.ClientID != id {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
			continue
		}
		out = append(out, order.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r orderRepo) HighestNumberWithPrefix(_ context.Context, prefix string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	highest := ""
	for _, order := range r.s.orders {
		if strings.HasPrefix(order.OrderNumber, prefix) && order.OrderNumber > highest {
			highest = order.OrderNumber
		}
	}
	return highest, nil
}

func (r orderRepo) CountCreatedBetween(_ context.Context, from, to time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, order := range r.s.orders {
		if !order.CreatedAt.Before(from) && order.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) Insert(_ context.Context, invoice domain.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.invoices[invoice.ID]; exists {
		return conflict("invoices.insert", "invoice %s already exists", invoice.ID)
	}
	for _, existing := range r.s.invoices {
		if existing.InvoiceNumber == invoice.InvoiceNumber {
			return conflict("invoices.insert", "invoice number %s already used", invoice.InvoiceNumber)
		}
	}
	r.s.invoices[invoice.ID] = invoice.Clone()
	return nil
}

func (r invoiceRepo) Update(_ context.Context, invoice domain.Invoice, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.invoices[invoice.ID]
	if !ok {
		return notFound("invoices.update", invoice.ID)
	}
	if current.Version != expectedVersion {
		return conflict("invoices.update", "invoice %s version %d, expected %d", invoice.ID, current.Version, expectedVersion)
	}
	stored := invoice.Clone()
	stored.Version = expectedVersion + 1
	r.s.invoices[invoice.ID] = stored
	return nil
}

func (r invoiceRepo) Delete(_ context.Context, invoiceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.invoices[invoiceID]; !ok {
		return notFound("invoices.delete", invoiceID)
	}
	delete(r.s.invoices, invoiceID)
	return nil
}

func (r invoiceRepo) FindByID(_ context.Context, invoiceID string) (domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	invoice, ok := r.s.invoices[invoiceID]
	if !ok {
		return domain.Invoice{}, notFound("invoices.get", invoiceID)
	}
	return invoice.Clone(), nil
}

func (r invoiceRepo) FindByOrderID(_ context.Context, orderID string) (domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, invoice := range r.s.invoices {
		if invoice.OrderID == orderID {
			return invoice.Clone(), nil
		}
	}
	return domain.Invoice{}, notFound("invoices.by_order", orderID)
}

func (r invoiceRepo) List(_ context.Context, filter repositories.InvoiceListFilter) ([]domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Invoice, 0, len(r.s.invoices))
	for _, invoice := range r.s.invoices {
		if id := strings.TrimSpace(filter.ClientID); id != "" && invoice.ClientID != id {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, invoice.Status) {
			continue
		}
		if filter.DueBefore != nil && !invoice.DueDate.Before(*filter.DueBefore) {
			continue
		}
		out = append(out, invoice.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r invoiceRepo) HighestNumberWithPrefix(_ context.Context, prefix string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	highest := ""
	for _, invoice := range r.s.invoices {
		if strings.HasPrefix(invoice.InvoiceNumber, prefix) && invoice.InvoiceNumber > highest {
			highest = invoice.InvoiceNumber
		}
	}
	return highest, nil
}

func (r invoiceRepo) SetPDFObject(_ context.Context, invoiceID, object string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	invoice, ok := r.s.invoices[invoiceID]
	if !ok {
		return notFound("invoices.set_pdf", invoiceID)
	}
	invoice.PDFObject = object
	r.s.invoices[invoiceID] = invoice
	return nil
}

func (r invoiceRepo) CountCreatedBetween(_ context.Context, from, to time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, invoice := range r.s.invoices {
		if !invoice.CreatedAt.Before(from) && invoice.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

type productRepo struct{ s *Store }

func (r productRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.get", productID)
	}
	product.Variants = slices.Clone(product.Variants)
	return product, nil
}

func (r productRepo) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.adjust_stock", productID)
	}
	if product.StockQuantity+delta < 0 {
		return domain.Product{}, conflict("products.adjust_stock", "product %s stock %d cannot absorb %d", productID, product.StockQuantity, delta)
	}
	product.StockQuantity += delta
	r.s.products[productID] = product
	if journal, ok := ctx.Value(txJournalKey{}).(*txJournal); ok {
		journal.record(productID, delta)
	}
	product.Variants = slices.Clone(product.Variants)
	return product, nil
}

type clientRepo struct{ s *Store }

func (r clientRepo) FindByID(_ context.Context, clientID string) (domain.ClientSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	client, ok := r.s.clients[clientID]
	if !ok {
		return domain.ClientSnapshot{}, notFound("clients.get", clientID)
	}
	return client, nil
}

type counterRepo struct{ s *Store }

func (r counterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if kind, window, ok := strings.Cut(counterID, ":"); !ok || strings.TrimSpace(kind) == "" || strings.TrimSpace(window) == "" {
		return 0, repositories.InvalidWindow(counterID, "expected {kind}:{window}")
	}
	if step <= 0 {
		step = 1
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	next := r.s.counters[counterID] + step
	if next > repositories.MaxSequencePerWindow {
		return 0, repositories.WindowExhausted(counterID, repositories.MaxSequencePerWindow)
	}
	r.s.counters[counterID] = next
	return next, nil
}
