package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// OrderWorkflowService sequences validation, pricing, persistence, invoicing and notification
// for merchant orders.
type OrderWorkflowService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	UpdateDeliveryFee(ctx context.Context, cmd UpdateDeliveryFeeCommand) (domain.Order, error)
	ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
	AttachTracking(ctx context.Context, cmd AttachTrackingCommand) (domain.Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (domain.Invoice, error)
}

// InvoiceService owns invoice numbering, persistence and the payment ledger.
type InvoiceService interface {
	CreateForOrder(ctx context.Context, order domain.Order, client domain.ClientSnapshot) (domain.Invoice, error)
	CreateStandalone(ctx context.Context, cmd CreateStandaloneInvoiceCommand) (domain.Invoice, error)
	// SyncWithOrder copies re-priced order totals onto its unpaid invoice.
	SyncWithOrder(ctx context.Context, order domain.Order) (domain.Invoice, error)
	RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (domain.Invoice, error)
	UpdateStatus(ctx context.Context, cmd UpdateInvoiceStatusCommand) (domain.Invoice, error)
	// RefreshOverdue re-derives the status of open invoices past their due date and returns
	// how many changed.
	RefreshOverdue(ctx context.Context) (int, error)
	// DeleteForOrder removes the invoice linked to an order. Invoices carrying payments are kept
	// and reported as a state error.
	DeleteForOrder(ctx context.Context, orderID string) error
	GetInvoice(ctx context.Context, invoiceID string) (domain.Invoice, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceListFilter) ([]domain.Invoice, error)
	RenderPDF(ctx context.Context, invoiceID string) ([]byte, error)
}

// OrderItemInput is one requested order line.
type OrderItemInput struct {
	ProductID string
	Quantity  int
	Variant   string
}

// CreateOrderCommand captures the input for CreateOrder.
type CreateOrderCommand struct {
	ClientID        string
	Items           []OrderItemInput
	ShippingMethod  domain.ShippingMethod
	ShippingAddress *domain.Address
	DeliveryService string
	// DeliveryFee, when set on a delivery order, resolves the fee at creation time.
	DeliveryFee    *decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountReason string
	Notes          string
	ActorID        string
}

// UpdateDeliveryFeeCommand resolves a pending delivery fee.
type UpdateDeliveryFeeCommand struct {
	OrderID         string
	Fee             decimal.Decimal
	DeliveryService string
	ActorID         string
}

// ApplyDiscountCommand replaces an order's discount.
type ApplyDiscountCommand struct {
	OrderID string
	Amount  decimal.Decimal
	Reason  string
	ActorID string
}

// UpdateOrderStatusCommand drives the order state machine.
type UpdateOrderStatusCommand struct {
	OrderID      string
	TargetStatus domain.OrderStatus
	Note         string
	ActorID      string
}

// AttachTrackingCommand records a carrier tracking number.
type AttachTrackingCommand struct {
	OrderID        string
	TrackingNumber string
	Carrier        string
	ActorID        string
}

// CancelOrderCommand cancels an order.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// DeleteOrderCommand removes a pending order.
type DeleteOrderCommand struct {
	OrderID string
	ActorID string
}

// OrderListFilter narrows ListOrders.
type OrderListFilter struct {
	ClientID string
	Status   []domain.OrderStatus
	Limit    int
}

// RecordPaymentCommand appends a payment to an invoice ledger.
type RecordPaymentCommand struct {
	InvoiceID string
	Amount    decimal.Decimal
	Method    domain.PaymentMethod
	Reference string
	Date      *time.Time
	Notes     string
	ActorID   string
}

// StandaloneItemInput is a free-form invoice line.
type StandaloneItemInput struct {
	ProductID string
	Name      string
	Quantity  int
	Unit      string
	UnitPrice decimal.Decimal
}

// CreateStandaloneInvoiceCommand issues an invoice not backed by an order.
type CreateStandaloneInvoiceCommand struct {
	ClientID    string
	Items       []StandaloneItemInput
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	DeliveryFee decimal.Decimal
	DueDate     *time.Time
	Notes       string
	// Draft keeps the invoice in draft until it is explicitly issued.
	Draft   bool
	ActorID string
}

// UpdateInvoiceStatusCommand applies a manual invoice status change.
type UpdateInvoiceStatusCommand struct {
	InvoiceID string
	Status    domain.InvoiceStatus
	ActorID   string
}

// InvoiceListFilter narrows ListInvoices.
type InvoiceListFilter struct {
	ClientID string
	Status   []domain.InvoiceStatus
	Limit    int
}

// DomainEvent is a named, fire-and-forget notification consumed outside the workflow.
type DomainEvent struct {
	Name       string
	OrderID    string
	InvoiceID  string
	ProductID  string
	OccurredAt time.Time
	Payload    map[string]any
}

// EventPublisher dispatches domain events at most once.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// ClientSource is one backing collection consulted by the ClientDirectory. Implementations report
// a missing client with a repository not-found error or domain.ErrNotFound.
type ClientSource interface {
	FindClient(ctx context.Context, clientID string) (domain.ClientSnapshot, error)
}

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing email.
type Message struct {
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// MailTransport delivers a single message. Transport errors implementing
// interface{ Transient() bool } are retried by the Notifier.
type MailTransport interface {
	Send(ctx context.Context, msg Message) error
}

// InvoiceRenderer renders an invoice document to PDF bytes.
type InvoiceRenderer interface {
	Render(ctx context.Context, invoice domain.Invoice) ([]byte, error)
}

// InvoiceArchive stores rendered invoice documents and returns the object name.
type InvoiceArchive interface {
	Put(ctx context.Context, invoiceNumber, filename string, data []byte) (string, error)
}
