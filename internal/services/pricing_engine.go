package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// PricingInput is everything the pricing engine reads. It never touches the catalog.
type PricingInput struct {
	Items          []domain.OrderItem
	ShippingMethod domain.ShippingMethod
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	// ResolvedFee is the delivery fee once known. Ignored for pickup.
	ResolvedFee *decimal.Decimal
	// StoredSubtotal pins the subtotal of an order whose fee was resolved after creation.
	StoredSubtotal *decimal.Decimal
}

// PricingEngine computes order totals, including the deferred delivery fee branch.
// It is stateless and safe for concurrent use.
type PricingEngine struct{}

// NewPricingEngine returns a pricing engine.
func NewPricingEngine() PricingEngine {
	return PricingEngine{}
}

// Price computes subtotal, shipping cost and total for the input.
//
// Pickup orders carry a zero fee and are always resolved. Delivery orders without a fee price to
// the TBD sentinel with DeliveryFeePending set. A resolved total is subtotal+fee+tax-discount,
// floored at zero.
func (PricingEngine) Price(in PricingInput) (domain.PricingBreakdown, error) {
	if !in.ShippingMethod.Valid() {
		return domain.PricingBreakdown{}, validationError("unknown shipping method %q", in.ShippingMethod)
	}
	if in.Tax.IsNegative() {
		return domain.PricingBreakdown{}, validationError("tax amount must not be negative")
	}
	if in.Discount.IsNegative() {
		return domain.PricingBreakdown{}, validationError("discount amount must not be negative")
	}

	var subtotal decimal.Decimal
	if in.StoredSubtotal != nil {
		subtotal = *in.StoredSubtotal
	} else {
		computed, err := Subtotal(in.Items)
		if err != nil {
			return domain.PricingBreakdown{}, err
		}
		subtotal = computed
	}

	out := domain.PricingBreakdown{
		Subtotal:       subtotal,
		TaxAmount:      in.Tax,
		DiscountAmount: in.Discount,
	}

	var fee decimal.Decimal
	switch in.ShippingMethod {
	case domain.ShippingMethodPickup:
		fee = decimal.Zero
	case domain.ShippingMethodDelivery:
		if in.ResolvedFee == nil {
			out.ShippingCost = domain.Pending()
			out.TotalAmount = domain.Pending()
			out.DeliveryFeePending = true
			return out, nil
		}
		if in.ResolvedFee.IsNegative() {
			return domain.PricingBreakdown{}, validationError("delivery fee must not be negative")
		}
		fee = *in.ResolvedFee
	}

	total := subtotal.Add(fee).Add(in.Tax).Sub(in.Discount)
	if total.IsNegative() {
		total = decimal.Zero
		out.DiscountClamped = true
	}

	out.ShippingCost = domain.Resolved(fee)
	out.TotalAmount = domain.Resolved(total)
	out.FinalTotalAmount = decimal.NewNullDecimal(total)
	return out, nil
}

// Subtotal sums line totals, deriving quantity × unitPrice for lines without one.
func Subtotal(items []domain.OrderItem) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for i, item := range items {
		if item.Quantity <= 0 {
			return decimal.Zero, validationError("items[%d]: quantity must be greater than zero", i)
		}
		if item.UnitPrice.IsNegative() {
			return decimal.Zero, validationError("items[%d]: unit price must not be negative", i)
		}
		line := item.LineTotal
		if line.IsZero() {
			line = item.ComputedLineTotal()
		}
		subtotal = subtotal.Add(line)
	}
	return subtotal, nil
}
