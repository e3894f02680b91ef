package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const productsCollection = "products"

// ProductRepository reads catalog documents and adjusts stock in per-product transactions.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
	clock    func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		clock:    time.Now,
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// AdjustStock applies delta in a transaction and refuses to drive stock negative. When ctx carries
// a stock journal from Registry.RunInTx the applied delta is recorded for compensation.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	var updated domain.Product
	err := r.provider.RunTransaction(ctx, pfirestore.TxStock, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return pfirestore.NewNotFound("products.adjust_stock", productID)
			}
			return err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		if doc.StockQuantity+delta < 0 {
			return pfirestore.NewStockConflict("products.adjust_stock", productID, doc.StockQuantity, delta)
		}

		doc.StockQuantity += delta
		doc.UpdatedAt = r.clock().UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "stockQuantity", Value: doc.StockQuantity},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.adjust_stock", err)
	}
	journalFrom(ctx).record(productID, delta)
	return updated, nil
}
