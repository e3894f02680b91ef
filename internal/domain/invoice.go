package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType distinguishes invoices derived from orders from manually issued ones.
type InvoiceType string

const (
	InvoiceTypeStandalone InvoiceType = "standalone"
	InvoiceTypeOrderBased InvoiceType = "order_based"
)

// InvoiceStatus is derived from the payment ledger and due date, see services.DeriveInvoiceStatus.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusPending       InvoiceStatus = "pending"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod records how a payment was settled outside the system.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodOther        PaymentMethod = "other"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCard,
		PaymentMethodMobileMoney, PaymentMethodOther:
		return true
	}
	return false
}

// Payment is an immutable ledger entry on an invoice.
type Payment struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Reference string          `json:"reference,omitempty"`
	Date      time.Time       `json:"date"`
	Notes     string          `json:"notes,omitempty"`
}

// InvoiceItem is a frozen copy of an order line.
type InvoiceItem struct {
	ProductID string          `json:"productId,omitempty"`
	Name      string          `json:"name"`
	Variant   string          `json:"variant,omitempty"`
	Quantity  int             `json:"quantity"`
	Unit      string          `json:"unit,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Invoice is the persisted invoice document.
type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Type          InvoiceType     `json:"type"`
	OrderID       string          `json:"orderId,omitempty"`
	ClientID      string          `json:"clientId"`
	Client        ClientSnapshot  `json:"clientInfo"`
	Items         []InvoiceItem   `json:"items"`
	Currency      string          `json:"currency"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	Payments      []Payment       `json:"payments"`
	IssueDate     time.Time       `json:"issueDate"`
	DueDate       time.Time       `json:"dueDate"`
	Status        InvoiceStatus   `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	PDFObject     string          `json:"pdfObject,omitempty"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Version       int64           `json:"version"`
}

// Balance is totalAmount − paidAmount.
func (inv Invoice) Balance() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// Clone returns a deep copy of the invoice.
func (inv Invoice) Clone() Invoice {
	cloned := inv
	cloned.Items = append([]InvoiceItem(nil), inv.Items...)
	cloned.Payments = append([]Payment(nil), inv.Payments...)
	if inv.Client.Address != nil {
		addr := *inv.Client.Address
		cloned.Client.Address = &addr
	}
	cloned.PaidAt = cloneTime(inv.PaidAt)
	return cloned
}
