package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

const defaultInvoiceDueDays = 7

// InvoiceDerivation builds invoice snapshots and maintains their payment ledger.
// It performs no I/O.
type InvoiceDerivation struct {
	dueDays  int
	currency string
}

// NewInvoiceDerivation constructs a derivation with the due period in days and the invoice currency.
func NewInvoiceDerivation(dueDays int, currency string) InvoiceDerivation {
	if dueDays <= 0 {
		dueDays = defaultInvoiceDueDays
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	return InvoiceDerivation{dueDays: dueDays, currency: currency}
}

// InvoiceHeader carries the identity fields assigned by the caller.
type InvoiceHeader struct {
	ID            string
	InvoiceNumber string
	IssueDate     time.Time
	DueDate       *time.Time
	Notes         string
}

// FromOrder snapshots a priced order into an order based invoice. ok is false while the order
// total is still pending, in which case no invoice is produced.
func (d InvoiceDerivation) FromOrder(order domain.Order, client domain.ClientSnapshot, header InvoiceHeader) (invoice domain.Invoice, ok bool) {
	total, resolved := order.TotalAmount.Value()
	if !resolved || order.DeliveryFeePending {
		return domain.Invoice{}, false
	}
	fee, _ := order.ShippingCost.Value()

	items := make([]domain.InvoiceItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = domain.InvoiceItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		}
	}

	notes := header.Notes
	if notes == "" {
		notes = order.Notes
	}
	inv := d.base(header, client, notes)
	inv.Type = domain.InvoiceTypeOrderBased
	inv.OrderID = order.ID
	inv.Items = items
	inv.Subtotal = order.Subtotal
	inv.Tax = order.TaxAmount
	inv.Discount = order.DiscountAmount
	inv.DeliveryFee = fee
	inv.TotalAmount = total
	inv.Status = domain.InvoiceStatusPending
	refreshStatus(&inv, inv.IssueDate)
	return inv, true
}

// Standalone builds an invoice not backed by an order. Line totals are derived from quantity and
// unit price and the total is floored at zero.
func (d InvoiceDerivation) Standalone(lines []StandaloneItemInput, tax, discount, deliveryFee decimal.Decimal, client domain.ClientSnapshot, header InvoiceHeader, draft bool) (domain.Invoice, error) {
	if len(lines) == 0 {
		return domain.Invoice{}, validationError("at least one invoice item is required")
	}
	if tax.IsNegative() || discount.IsNegative() || deliveryFee.IsNegative() {
		return domain.Invoice{}, validationError("tax, discount and delivery fee must not be negative")
	}

	items := make([]domain.InvoiceItem, len(lines))
	subtotal := decimal.Zero
	for i, line := range lines {
		name := strings.TrimSpace(line.Name)
		if name == "" {
			return domain.Invoice{}, validationError("items[%d]: name is required", i)
		}
		if line.Quantity <= 0 {
			return domain.Invoice{}, validationError("items[%d]: quantity must be greater than zero", i)
		}
		if line.UnitPrice.IsNegative() {
			return domain.Invoice{}, validationError("items[%d]: unit price must not be negative", i)
		}
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items[i] = domain.InvoiceItem{
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      name,
			Quantity:  line.Quantity,
			Unit:      strings.TrimSpace(line.Unit),
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}

	total := subtotal.Add(deliveryFee).Add(tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	inv := d.base(header, client, header.Notes)
	inv.Type = domain.InvoiceTypeStandalone
	inv.Items = items
	inv.Subtotal = subtotal
	inv.Tax = tax
	inv.Discount = discount
	inv.DeliveryFee = deliveryFee
	inv.TotalAmount = total
	inv.Status = domain.InvoiceStatusPending
	if draft {
		inv.Status = domain.InvoiceStatusDraft
	}
	refreshStatus(&inv, inv.IssueDate)
	return inv, nil
}

func (d InvoiceDerivation) base(header InvoiceHeader, client domain.ClientSnapshot, notes string) domain.Invoice {
	issue := header.IssueDate.UTC()
	due := issue.AddDate(0, 0, d.dueDays)
	if header.DueDate != nil {
		due = header.DueDate.UTC()
	}
	snapshot := client
	snapshot.Address = cloneAddress(client.Address)
	return domain.Invoice{
		ID:            header.ID,
		InvoiceNumber: header.InvoiceNumber,
		ClientID:      client.ID,
		Client:        snapshot,
		Currency:      d.currency,
		PaidAmount:    decimal.Zero,
		Payments:      []domain.Payment{},
		IssueDate:     issue,
		DueDate:       due,
		Notes:         strings.TrimSpace(notes),
		CreatedAt:     issue,
		UpdatedAt:     issue,
	}
}

// ApplyPayment appends payment to the ledger and re-derives the status. The invoice is left
// unchanged when the payment is rejected.
func ApplyPayment(inv *domain.Invoice, payment domain.Payment, now time.Time) error {
	if !payment.Amount.IsPositive() {
		return validationError("payment amount must be greater than zero")
	}
	if payment.Method != "" && !payment.Method.Valid() {
		return validationError("unknown payment method %q", payment.Method)
	}
	if inv.Status == domain.InvoiceStatusCancelled {
		return domain.NewStateError(domain.StateReasonInvoiceClosed, "invoice %s is cancelled", inv.InvoiceNumber)
	}
	paid := inv.PaidAmount.Add(payment.Amount)
	if paid.GreaterThan(inv.TotalAmount) {
		return domain.NewStateError(domain.StateReasonOverpayment,
			"payment of %s exceeds balance %s on invoice %s", payment.Amount.StringFixed(2), inv.Balance().StringFixed(2), inv.InvoiceNumber)
	}

	inv.Payments = append(inv.Payments, payment)
	inv.PaidAmount = paid
	inv.UpdatedAt = now
	refreshStatus(inv, now)
	return nil
}

// refreshStatus re-derives the status and stamps PaidAt the first time the invoice settles.
// A zero total settles on creation.
func refreshStatus(inv *domain.Invoice, now time.Time) {
	inv.Status = DeriveInvoiceStatus(*inv, now)
	if inv.Status == domain.InvoiceStatusPaid && inv.PaidAt == nil {
		paidAt := now
		inv.PaidAt = &paidAt
	}
}

// DeriveInvoiceStatus applies the status precedence
// cancelled > paid > overdue > partially_paid > draft/pending.
func DeriveInvoiceStatus(inv domain.Invoice, now time.Time) domain.InvoiceStatus {
	switch {
	case inv.Status == domain.InvoiceStatusCancelled:
		return domain.InvoiceStatusCancelled
	case inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount):
		return domain.InvoiceStatusPaid
	case now.After(inv.DueDate):
		return domain.InvoiceStatusOverdue
	case inv.PaidAmount.IsPositive():
		return domain.InvoiceStatusPartiallyPaid
	case inv.Status == domain.InvoiceStatusDraft:
		return domain.InvoiceStatusDraft
	default:
		return domain.InvoiceStatusPending
	}
}

// PaymentStatusFor maps an invoice onto the order payment status it implies.
func PaymentStatusFor(inv domain.Invoice) domain.PaymentStatus {
	switch {
	case inv.Status == domain.InvoiceStatusPaid:
		return domain.PaymentStatusPaid
	case inv.Status == domain.InvoiceStatusCancelled && inv.PaidAmount.IsPositive():
		return domain.PaymentStatusRefunded
	case inv.PaidAmount.IsPositive():
		return domain.PaymentStatusPartiallyPaid
	default:
		return domain.PaymentStatusUnpaid
	}
}
