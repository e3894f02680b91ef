package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// ProductReader is the read side of the catalog used by availability checks.
type ProductReader interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// AvailabilityRequest is one requested line checked against the catalog.
type AvailabilityRequest struct {
	ProductID string
	Quantity  int
	Variant   string
}

// AvailabilityValidator checks requested lines against product snapshots. It never writes.
type AvailabilityValidator struct {
	products ProductReader
}

// NewAvailabilityValidator constructs a validator backed by the product store.
func NewAvailabilityValidator(products ProductReader) (*AvailabilityValidator, error) {
	if products == nil {
		return nil, errors.New("availability validator: product reader is required")
	}
	return &AvailabilityValidator{products: products}, nil
}

// Validate inspects requests in order and returns the product snapshot for each line.
// Quantities for the same product are accumulated before comparing against stock.
func (v *AvailabilityValidator) Validate(ctx context.Context, requests []AvailabilityRequest) ([]domain.Product, error) {
	if len(requests) == 0 {
		return nil, validationError("at least one item is required")
	}

	snapshots := make([]domain.Product, 0, len(requests))
	cache := make(map[string]domain.Product, len(requests))
	requested := make(map[string]int, len(requests))

	for i, req := range requests {
		productID := strings.TrimSpace(req.ProductID)
		if productID == "" {
			return nil, validationError("items[%d]: product id is required", i)
		}
		if req.Quantity <= 0 {
			return nil, validationError("items[%d]: quantity must be greater than zero", i)
		}

		product, ok := cache[productID]
		if !ok {
			found, err := v.products.FindByID(ctx, productID)
			if err != nil {
				if isRepoNotFound(err) || errors.Is(err, domain.ErrNotFound) {
					return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
				}
				return nil, mapRepositoryError("products.get", "product "+productID, err)
			}
			product = found
			cache[productID] = product
		}

		if !product.IsAvailable {
			return nil, domain.NewStateError(domain.StateReasonUnavailable, "product %s is not available", productID)
		}

		requested[productID] += req.Quantity
		if product.StockQuantity < requested[productID] {
			return nil, domain.NewStateError(domain.StateReasonInsufficientStock,
				"product %s has %d in stock, %d requested", productID, product.StockQuantity, requested[productID])
		}

		if variant := strings.TrimSpace(req.Variant); variant != "" && !product.HasVariant(variant) {
			return nil, domain.NewStateError(domain.StateReasonUnknownVariant, "product %s has no variant %q", productID, variant)
		}

		snapshots = append(snapshots, product)
	}
	return snapshots, nil
}
