package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository on the orders collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if _, err := r.base.Create(ctx, order.ID, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update writes order when the stored version equals expectedVersion, inside one transaction.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) error {
	err := r.provider.RunTransaction(ctx, pfirestore.TxDocumentWrite, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return pfirestore.NewNotFound("orders.update", order.ID)
			}
			return err
		}
		var current orderDocument
		if err := snapshot.DataTo(&current); err != nil {
			return fmt.Errorf("decode order %s: %w", order.ID, err)
		}
		if current.Version != expectedVersion {
			return pfirestore.NewVersionConflict("orders.update", "order "+order.ID, current.Version, expectedVersion)
		}

		doc := newOrderDocument(order)
		doc.Version = expectedVersion + 1
		return tx.Set(ref, doc)
	})
	return pfirestore.WrapError("orders.update", err)
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if err := r.base.Delete(ctx, orderID, firestore.Exists); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	return doc.Data.toDomain(doc.ID)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if id := strings.TrimSpace(filter.ClientID); id != "" {
			q = q.Where("clientId", "==", id)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, pfirestore.WrapError("orders.list", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// HighestNumberWithPrefix scans orderNumber as a string range; numbers are zero padded so
// lexical order matches sequence order.
func (r *OrderRepository) HighestNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", ">=", prefix).
			Where("orderNumber", "<", prefix+"\uf8ff").
			OrderBy("orderNumber", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return "", pfirestore.WrapError("orders.highest_number", err)
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].Data.OrderNumber, nil
}

func (r *OrderRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	count, err := r.base.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", from.UTC()).Where("createdAt", "<", to.UTC())
	})
	if err != nil {
		return 0, pfirestore.WrapError("orders.count", err)
	}
	return count, nil
}
