package domain

import "github.com/shopspring/decimal"

// PricingBreakdown captures the monetary outputs of pricing an order.
type PricingBreakdown struct {
	Subtotal           decimal.Decimal
	ShippingCost       Amount
	TaxAmount          decimal.Decimal
	DiscountAmount     decimal.Decimal
	TotalAmount        Amount
	DeliveryFeePending bool
	FinalTotalAmount   decimal.NullDecimal
	// DiscountClamped is set when the discount exceeded subtotal+fee+tax and the total was floored at zero.
	DiscountClamped bool
}

// ApplyTo copies the breakdown onto the order's pricing fields.
func (b PricingBreakdown) ApplyTo(order *Order) {
	order.Subtotal = b.Subtotal
	order.ShippingCost = b.ShippingCost
	order.TaxAmount = b.TaxAmount
	order.DiscountAmount = b.DiscountAmount
	order.TotalAmount = b.TotalAmount
	order.DeliveryFeePending = b.DeliveryFeePending
	order.FinalTotalAmount = b.FinalTotalAmount
}
