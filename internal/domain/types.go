package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the merchant is preparing the order.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the merchant.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the client.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned is terminal.
	OrderStatusReturned OrderStatus = "returned"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// ShippingMethod selects between delivery (fee may be deferred) and pickup (no fee).
type ShippingMethod string

const (
	ShippingMethodDelivery ShippingMethod = "delivery"
	ShippingMethodPickup   ShippingMethod = "pickup"
)

// Valid reports whether m is a known shipping method.
func (m ShippingMethod) Valid() bool {
	return m == ShippingMethodDelivery || m == ShippingMethodPickup
}

// PaymentStatus mirrors the linked invoice's settlement on the order.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

// Address is a postal address snapshot.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// OrderItem is a priced line captured from the catalog at order time.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Variant   string          `json:"variant,omitempty"`
	Quantity  int             `json:"quantity"`
	Unit      string          `json:"unit,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// ComputedLineTotal returns quantity × unitPrice.
func (i OrderItem) ComputedLineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StatusEntry is one append-only audit record on an order.
type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
	Actor     string      `json:"actor,omitempty"`
}

// Order is the persisted order document.
type Order struct {
	ID                 string              `json:"id"`
	OrderNumber        string              `json:"orderNumber"`
	ClientID           string              `json:"clientId"`
	Items              []OrderItem         `json:"items"`
	Status             OrderStatus         `json:"status"`
	PaymentStatus      PaymentStatus       `json:"paymentStatus"`
	ShippingMethod     ShippingMethod      `json:"shippingMethod"`
	ShippingAddress    *Address            `json:"shippingAddress,omitempty"`
	DeliveryService    string              `json:"deliveryService,omitempty"`
	Subtotal           decimal.Decimal     `json:"subtotal"`
	ShippingCost       Amount              `json:"shippingCost"`
	TaxAmount          decimal.Decimal     `json:"taxAmount"`
	DiscountAmount     decimal.Decimal     `json:"discountAmount"`
	DiscountReason     string              `json:"discountReason,omitempty"`
	TotalAmount        Amount              `json:"totalAmount"`
	DeliveryFeePending bool                `json:"deliveryFeePending"`
	FinalTotalAmount   decimal.NullDecimal `json:"finalTotalAmount"`
	FeeResolvedAt      *time.Time          `json:"feeResolvedAt,omitempty"`
	TrackingNumber     string              `json:"trackingNumber,omitempty"`
	Carrier            string              `json:"carrier,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	StatusHistory      []StatusEntry       `json:"statusHistory"`
	InvoiceID          string              `json:"invoiceId,omitempty"`
	StockCommitted     bool                `json:"stockCommitted"`
	CancelReason       string              `json:"cancelReason,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
	ShippedAt          *time.Time          `json:"shippedAt,omitempty"`
	DeliveredAt        *time.Time          `json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time          `json:"cancelledAt,omitempty"`
	Version            int64               `json:"version"`
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (o Order) Clone() Order {
	cloned := o
	cloned.Items = append([]OrderItem(nil), o.Items...)
	cloned.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		cloned.ShippingAddress = &addr
	}
	cloned.FeeResolvedAt = cloneTime(o.FeeResolvedAt)
	cloned.ShippedAt = cloneTime(o.ShippedAt)
	cloned.DeliveredAt = cloneTime(o.DeliveredAt)
	cloned.CancelledAt = cloneTime(o.CancelledAt)
	return cloned
}

// Product is the catalog snapshot consulted during availability checks.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	Unit          string          `json:"unit,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	IsAvailable   bool            `json:"isAvailable"`
	Variants      []string        `json:"variants,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// HasVariant reports whether variant belongs to the product's variant set.
func (p Product) HasVariant(variant string) bool {
	for _, v := range p.Variants {
		if v == variant {
			return true
		}
	}
	return false
}

// ClientSnapshot is the contact data copied onto invoices and used for notifications.
type ClientSnapshot struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
	Source  string   `json:"source,omitempty"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
