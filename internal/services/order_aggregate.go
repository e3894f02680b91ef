package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

const orderCreatedNote = "created"

// NewOrderParams captures the data needed to open a new order aggregate.
type NewOrderParams struct {
	ID              string
	OrderNumber     string
	ClientID        string
	Items           []OrderItemInput
	ShippingMethod  domain.ShippingMethod
	ShippingAddress *domain.Address
	DeliveryService string
	DeliveryFee     *decimal.Decimal
	Tax             decimal.Decimal
	Discount        decimal.Decimal
	DiscountReason  string
	Notes           string
	ActorID         string
}

// OrderAggregateFactory opens new aggregates and rehydrates persisted ones.
type OrderAggregateFactory struct {
	validator *AvailabilityValidator
	pricing   PricingEngine
	machine   OrderStateMachine
	clock     func() time.Time
}

// NewOrderAggregateFactory wires the validator, pricing engine and state machine together.
func NewOrderAggregateFactory(validator *AvailabilityValidator, clock func() time.Time) (*OrderAggregateFactory, error) {
	if validator == nil {
		return nil, errors.New("order aggregate factory: availability validator is required")
	}
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }
	return &OrderAggregateFactory{
		validator: validator,
		pricing:   NewPricingEngine(),
		machine:   NewOrderStateMachine(utc),
		clock:     utc,
	}, nil
}

// Create validates the requested lines, snapshots catalog data onto them, prices the order and
// seeds the status history with the creation entry.
func (f *OrderAggregateFactory) Create(ctx context.Context, params NewOrderParams) (*OrderAggregate, error) {
	if strings.TrimSpace(params.ClientID) == "" {
		return nil, validationError("client id is required")
	}
	if !params.ShippingMethod.Valid() {
		return nil, validationError("shipping method must be delivery or pickup")
	}
	if params.ShippingMethod == domain.ShippingMethodDelivery && params.ShippingAddress == nil {
		return nil, validationError("shipping address is required for delivery orders")
	}

	requests := make([]AvailabilityRequest, len(params.Items))
	for i, item := range params.Items {
		requests[i] = AvailabilityRequest{ProductID: item.ProductID, Quantity: item.Quantity, Variant: item.Variant}
	}
	products, err := f.validator.Validate(ctx, requests)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, len(params.Items))
	for i, input := range params.Items {
		product := products[i]
		item := domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Variant:   strings.TrimSpace(input.Variant),
			Quantity:  input.Quantity,
			Unit:      product.Unit,
			UnitPrice: product.Price,
		}
		item.LineTotal = item.ComputedLineTotal()
		items[i] = item
	}

	now := f.clock()
	order := domain.Order{
		ID:              params.ID,
		OrderNumber:     params.OrderNumber,
		ClientID:        strings.TrimSpace(params.ClientID),
		Items:           items,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		ShippingMethod:  params.ShippingMethod,
		ShippingAddress: cloneAddress(params.ShippingAddress),
		DeliveryService: strings.TrimSpace(params.DeliveryService),
		DiscountReason:  strings.TrimSpace(params.DiscountReason),
		Notes:           strings.TrimSpace(params.Notes),
		StatusHistory: []domain.StatusEntry{{
			Status:    domain.OrderStatusPending,
			Timestamp: now,
			Note:      orderCreatedNote,
			Actor:     strings.TrimSpace(params.ActorID),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	breakdown, err := f.pricing.Price(PricingInput{
		Items:          items,
		ShippingMethod: params.ShippingMethod,
		Tax:            params.Tax,
		Discount:       params.Discount,
		ResolvedFee:    params.DeliveryFee,
	})
	if err != nil {
		return nil, err
	}
	breakdown.ApplyTo(&order)
	if params.ShippingMethod == domain.ShippingMethodDelivery && params.DeliveryFee != nil {
		order.FeeResolvedAt = &now
	}

	return &OrderAggregate{order: order, pricing: f.pricing, machine: f.machine, clock: f.clock, clamped: breakdown.DiscountClamped}, nil
}

// Rehydrate wraps a persisted order.
func (f *OrderAggregateFactory) Rehydrate(order domain.Order) *OrderAggregate {
	return &OrderAggregate{order: order.Clone(), pricing: f.pricing, machine: f.machine, clock: f.clock}
}

// OrderAggregate owns an order's lines, pricing fields and status. Every mutation works on a copy
// and commits only when it succeeds, so a rejected call leaves the order untouched.
type OrderAggregate struct {
	order   domain.Order
	pricing PricingEngine
	machine OrderStateMachine
	clock   func() time.Time
	clamped bool
}

// DiscountClamped reports whether the latest pricing floored the total at zero because the
// discount exceeded everything else.
func (a *OrderAggregate) DiscountClamped() bool {
	return a.clamped
}

// Order returns a copy of the current state.
func (a *OrderAggregate) Order() domain.Order {
	return a.order.Clone()
}

// RecalculateTotals re-runs pricing with the current fields. Calling it twice yields the same result.
func (a *OrderAggregate) RecalculateTotals() error {
	next := a.order.Clone()
	if err := a.reprice(&next); err != nil {
		return err
	}
	a.order = next
	return nil
}

// UpdateDeliveryFee resolves the pending delivery fee and the total that depends on it.
func (a *OrderAggregate) UpdateDeliveryFee(fee decimal.Decimal, deliveryService, actor string) error {
	if !a.order.DeliveryFeePending {
		return domain.NewStateError(domain.StateReasonFeeNotPending, "order %s has no pending delivery fee", a.order.ID)
	}
	if fee.IsNegative() {
		return domain.NewStateError(domain.StateReasonInvalidDeliveryFee, "delivery fee %s must not be negative", fee.StringFixed(2))
	}
	if a.order.Status.IsTerminal() {
		return domain.NewStateError(domain.StateReasonOrderClosed, "order %s is %s", a.order.ID, a.order.Status)
	}

	next := a.order.Clone()
	subtotal := next.Subtotal
	breakdown, err := a.pricing.Price(PricingInput{
		Items:          next.Items,
		ShippingMethod: next.ShippingMethod,
		Tax:            next.TaxAmount,
		Discount:       next.DiscountAmount,
		ResolvedFee:    &fee,
		StoredSubtotal: &subtotal,
	})
	if err != nil {
		return err
	}
	breakdown.ApplyTo(&next)
	a.clamped = breakdown.DiscountClamped
	now := a.clock()
	next.FeeResolvedAt = &now
	if service := strings.TrimSpace(deliveryService); service != "" {
		next.DeliveryService = service
	}
	a.machine.Annotate(&next, fmt.Sprintf("delivery fee set to %s", fee.StringFixed(2)), actor)
	a.order = next
	return nil
}

// ApplyDiscount replaces the discount and re-prices the order.
func (a *OrderAggregate) ApplyDiscount(amount decimal.Decimal, reason, actor string) error {
	if amount.IsNegative() {
		return validationError("discount amount must not be negative")
	}
	if a.order.Status.IsTerminal() {
		return domain.NewStateError(domain.StateReasonOrderClosed, "order %s is %s", a.order.ID, a.order.Status)
	}

	next := a.order.Clone()
	next.DiscountAmount = amount
	next.DiscountReason = strings.TrimSpace(reason)
	if err := a.reprice(&next); err != nil {
		return err
	}
	note := fmt.Sprintf("discount set to %s", amount.StringFixed(2))
	if next.DiscountReason != "" {
		note += ": " + next.DiscountReason
	}
	a.machine.Annotate(&next, note, actor)
	a.order = next
	return nil
}

// Transition moves the order through the state machine.
func (a *OrderAggregate) Transition(target domain.OrderStatus, note, actor string) error {
	next := a.order.Clone()
	if err := a.machine.Transition(&next, target, note, actor); err != nil {
		return err
	}
	a.order = next
	return nil
}

// AttachTracking records a tracking number, shipping the order when it has not shipped yet.
func (a *OrderAggregate) AttachTracking(trackingNumber, carrier, actor string) error {
	next := a.order.Clone()
	if err := a.machine.AttachTracking(&next, trackingNumber, carrier, actor); err != nil {
		return err
	}
	a.order = next
	return nil
}

// Cancel moves the order to cancelled whatever its payment state.
func (a *OrderAggregate) Cancel(reason, actor string) error {
	reason = strings.TrimSpace(reason)
	next := a.order.Clone()
	if err := a.machine.Transition(&next, domain.OrderStatusCancelled, reason, actor); err != nil {
		return err
	}
	next.CancelReason = reason
	a.order = next
	return nil
}

// CanDelete reports a state error unless the order is still pending.
func (a *OrderAggregate) CanDelete() error {
	if a.order.Status != domain.OrderStatusPending {
		return domain.NewStateError(domain.StateReasonNotDeletable, "order %s is %s, only pending orders can be deleted", a.order.ID, a.order.Status)
	}
	return nil
}

// LinkInvoice records the id of the invoice derived from this order.
func (a *OrderAggregate) LinkInvoice(invoiceID string) {
	a.order.InvoiceID = invoiceID
	a.order.UpdatedAt = a.clock()
}

// SetPaymentStatus mirrors the linked invoice's settlement.
func (a *OrderAggregate) SetPaymentStatus(status domain.PaymentStatus) bool {
	if a.order.PaymentStatus == status {
		return false
	}
	a.order.PaymentStatus = status
	a.order.UpdatedAt = a.clock()
	return true
}

// MarkStockCommitted flags that catalog stock was decremented for this order.
func (a *OrderAggregate) MarkStockCommitted(committed bool) {
	a.order.StockCommitted = committed
}

func (a *OrderAggregate) reprice(order *domain.Order) error {
	input := PricingInput{
		Items:          order.Items,
		ShippingMethod: order.ShippingMethod,
		Tax:            order.TaxAmount,
		Discount:       order.DiscountAmount,
	}
	if order.FeeResolvedAt != nil {
		subtotal := order.Subtotal
		input.StoredSubtotal = &subtotal
	} else {
		for i := range order.Items {
			order.Items[i].LineTotal = order.Items[i].ComputedLineTotal()
		}
	}
	if fee, ok := order.ShippingCost.Value(); ok && order.ShippingMethod == domain.ShippingMethodDelivery && !order.DeliveryFeePending {
		input.ResolvedFee = &fee
	}

	breakdown, err := a.pricing.Price(input)
	if err != nil {
		return err
	}
	breakdown.ApplyTo(order)
	a.clamped = breakdown.DiscountClamped
	return nil
}

func cloneAddress(addr *domain.Address) *domain.Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}
