package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// Money is persisted as a float64 number, matching what other clients of the collections write.
// Amounts that may be pending are persisted as either a number or the "TBD" string.

type addressDocument struct {
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
}

type orderItemDocument struct {
	ProductID string  `firestore:"productId"`
	Name      string  `firestore:"name"`
	Variant   string  `firestore:"variant,omitempty"`
	Quantity  int     `firestore:"quantity"`
	Unit      string  `firestore:"unit,omitempty"`
	UnitPrice float64 `firestore:"unitPrice"`
	LineTotal float64 `firestore:"lineTotal"`
}

type statusEntryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	Note      string    `firestore:"note,omitempty"`
	Actor     string    `firestore:"actor,omitempty"`
}

type orderDocument struct {
	OrderNumber        string                `firestore:"orderNumber"`
	ClientID           string                `firestore:"clientId"`
	Items              []orderItemDocument   `firestore:"items"`
	Status             string                `firestore:"status"`
	PaymentStatus      string                `firestore:"paymentStatus"`
	ShippingMethod     string                `firestore:"shippingMethod"`
	ShippingAddress    *addressDocument      `firestore:"shippingAddress,omitempty"`
	DeliveryService    string                `firestore:"deliveryService,omitempty"`
	Subtotal           float64               `firestore:"subtotal"`
	ShippingCost       any                   `firestore:"shippingCost"`
	TaxAmount          float64               `firestore:"taxAmount"`
	DiscountAmount     float64               `firestore:"discountAmount"`
	DiscountReason     string                `firestore:"discountReason,omitempty"`
	TotalAmount        any                   `firestore:"totalAmount"`
	DeliveryFeePending bool                  `firestore:"deliveryFeePending"`
	FinalTotalAmount   *float64              `firestore:"finalTotalAmount"`
	FeeResolvedAt      *time.Time            `firestore:"feeResolvedAt,omitempty"`
	TrackingNumber     string                `firestore:"trackingNumber,omitempty"`
	Carrier            string                `firestore:"carrier,omitempty"`
	Notes              string                `firestore:"notes,omitempty"`
	StatusHistory      []statusEntryDocument `firestore:"statusHistory"`
	InvoiceID          string                `firestore:"invoiceId,omitempty"`
	StockCommitted     bool                  `firestore:"stockCommitted"`
	CancelReason       string                `firestore:"cancelReason,omitempty"`
	CreatedAt          time.Time             `firestore:"createdAt"`
	UpdatedAt          time.Time             `firestore:"updatedAt"`
	ShippedAt          *time.Time            `firestore:"shippedAt,omitempty"`
	DeliveredAt        *time.Time            `firestore:"deliveredAt,omitempty"`
	CancelledAt        *time.Time            `firestore:"cancelledAt,omitempty"`
	Version            int64                 `firestore:"version"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:        order.OrderNumber,
		ClientID:           order.ClientID,
		Items:              make([]orderItemDocument, 0, len(order.Items)),
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		ShippingMethod:     string(order.ShippingMethod),
		ShippingAddress:    newAddressDocument(order.ShippingAddress),
		DeliveryService:    order.DeliveryService,
		Subtotal:           order.Subtotal.InexactFloat64(),
		ShippingCost:       order.ShippingCost.StoredValue(),
		TaxAmount:          order.TaxAmount.InexactFloat64(),
		DiscountAmount:     order.DiscountAmount.InexactFloat64(),
		DiscountReason:     order.DiscountReason,
		TotalAmount:        order.TotalAmount.StoredValue(),
		DeliveryFeePending: order.DeliveryFeePending,
		FeeResolvedAt:      utcPtr(order.FeeResolvedAt),
		TrackingNumber:     order.TrackingNumber,
		Carrier:            order.Carrier,
		Notes:              order.Notes,
		StatusHistory:      make([]statusEntryDocument, 0, len(order.StatusHistory)),
		InvoiceID:          order.InvoiceID,
		StockCommitted:     order.StockCommitted,
		CancelReason:       order.CancelReason,
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
		ShippedAt:          utcPtr(order.ShippedAt),
		DeliveredAt:        utcPtr(order.DeliveredAt),
		CancelledAt:        utcPtr(order.CancelledAt),
		Version:            order.Version,
	}
	if order.FinalTotalAmount.Valid {
		final := order.FinalTotalAmount.Decimal.InexactFloat64()
		doc.FinalTotalAmount = &final
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			UnitPrice: item.UnitPrice.InexactFloat64(),
			LineTotal: item.LineTotal.InexactFloat64(),
		})
	}
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusEntryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Note:      entry.Note,
			Actor:     entry.Actor,
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	shipping, err := domain.AmountFromStored(d.ShippingCost)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s shippingCost: %w", id, err)
	}
	total, err := domain.AmountFromStored(d.TotalAmount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s totalAmount: %w", id, err)
	}

	order := domain.Order{
		ID:                 id,
		OrderNumber:        d.OrderNumber,
		ClientID:           d.ClientID,
		Items:              make([]domain.OrderItem, 0, len(d.Items)),
		Status:             domain.OrderStatus(d.Status),
		PaymentStatus:      domain.PaymentStatus(d.PaymentStatus),
		ShippingMethod:     domain.ShippingMethod(d.ShippingMethod),
		ShippingAddress:    d.ShippingAddress.toDomain(),
		DeliveryService:    d.DeliveryService,
		Subtotal:           money(d.Subtotal),
		ShippingCost:       shipping,
		TaxAmount:          money(d.TaxAmount),
		DiscountAmount:     money(d.DiscountAmount),
		DiscountReason:     d.DiscountReason,
		TotalAmount:        total,
		DeliveryFeePending: d.DeliveryFeePending,
		FeeResolvedAt:      utcPtr(d.FeeResolvedAt),
		TrackingNumber:     d.TrackingNumber,
		Carrier:            d.Carrier,
		Notes:              d.Notes,
		StatusHistory:      make([]domain.StatusEntry, 0, len(d.StatusHistory)),
		InvoiceID:          d.InvoiceID,
		StockCommitted:     d.StockCommitted,
		CancelReason:       d.CancelReason,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
		ShippedAt:          utcPtr(d.ShippedAt),
		DeliveredAt:        utcPtr(d.DeliveredAt),
		CancelledAt:        utcPtr(d.CancelledAt),
		Version:            d.Version,
	}
	if d.FinalTotalAmount != nil {
		order.FinalTotalAmount = decimal.NewNullDecimal(money(*d.FinalTotalAmount))
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			UnitPrice: money(item.UnitPrice),
			LineTotal: money(item.LineTotal),
		})
	}
	for _, entry := range d.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Note:      entry.Note,
			Actor:     entry.Actor,
		})
	}
	return order, nil
}

type invoiceItemDocument struct {
	ProductID string  `firestore:"productId,omitempty"`
	Name      string  `firestore:"name"`
	Variant   string  `firestore:"variant,omitempty"`
	Quantity  int     `firestore:"quantity"`
	Unit      string  `firestore:"unit,omitempty"`
	UnitPrice float64 `firestore:"unitPrice"`
	LineTotal float64 `firestore:"lineTotal"`
}

type paymentDocument struct {
	ID        string    `firestore:"id"`
	Amount    float64   `firestore:"amount"`
	Method    string    `firestore:"method"`
	Reference string    `firestore:"reference,omitempty"`
	Date      time.Time `firestore:"date"`
	Notes     string    `firestore:"notes,omitempty"`
}

type clientDocument struct {
	Name    string           `firestore:"name"`
	Email   string           `firestore:"email,omitempty"`
	Phone   string           `firestore:"phone,omitempty"`
	Address *addressDocument `firestore:"address,omitempty"`
}

type invoiceDocument struct {
	InvoiceNumber string                `firestore:"invoiceNumber"`
	Type          string                `firestore:"type"`
	OrderID       string                `firestore:"orderId,omitempty"`
	ClientID      string                `firestore:"clientId"`
	ClientInfo    clientDocument        `firestore:"clientInfo"`
	ClientSource  string                `firestore:"clientSource,omitempty"`
	Items         []invoiceItemDocument `firestore:"items"`
	Currency      string                `firestore:"currency"`
	Subtotal      float64               `firestore:"subtotal"`
	Tax           float64               `firestore:"tax"`
	Discount      float64               `firestore:"discount"`
	DeliveryFee   float64               `firestore:"deliveryFee"`
	TotalAmount   float64               `firestore:"totalAmount"`
	PaidAmount    float64               `firestore:"paidAmount"`
	Payments      []paymentDocument     `firestore:"payments"`
	IssueDate     time.Time             `firestore:"issueDate"`
	DueDate       time.Time             `firestore:"dueDate"`
	Status        string                `firestore:"status"`
	Notes         string                `firestore:"notes,omitempty"`
	PDFObject     string                `firestore:"pdfObject,omitempty"`
	PaidAt        *time.Time            `firestore:"paidAt,omitempty"`
	CreatedAt     time.Time             `firestore:"createdAt"`
	UpdatedAt     time.Time             `firestore:"updatedAt"`
	Version       int64                 `firestore:"version"`
}

func newInvoiceDocument(inv domain.Invoice) invoiceDocument {
	doc := invoiceDocument{
		InvoiceNumber: inv.InvoiceNumber,
		Type:          string(inv.Type),
		OrderID:       inv.OrderID,
		ClientID:      inv.ClientID,
		ClientInfo:    newClientDocument(inv.Client),
		ClientSource:  inv.Client.Source,
		Items:         make([]invoiceItemDocument, 0, len(inv.Items)),
		Currency:      inv.Currency,
		Subtotal:      inv.Subtotal.InexactFloat64(),
		Tax:           inv.Tax.InexactFloat64(),
		Discount:      inv.Discount.InexactFloat64(),
		DeliveryFee:   inv.DeliveryFee.InexactFloat64(),
		TotalAmount:   inv.TotalAmount.InexactFloat64(),
		PaidAmount:    inv.PaidAmount.InexactFloat64(),
		Payments:      make([]paymentDocument, 0, len(inv.Payments)),
		IssueDate:     inv.IssueDate.UTC(),
		DueDate:       inv.DueDate.UTC(),
		Status:        string(inv.Status),
		Notes:         inv.Notes,
		PDFObject:     inv.PDFObject,
		PaidAt:        utcPtr(inv.PaidAt),
		CreatedAt:     inv.CreatedAt.UTC(),
		UpdatedAt:     inv.UpdatedAt.UTC(),
		Version:       inv.Version,
	}
	for _, item := range inv.Items {
		doc.Items = append(doc.Items, invoiceItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			UnitPrice: item.UnitPrice.InexactFloat64(),
			LineTotal: item.LineTotal.InexactFloat64(),
		})
	}
	for _, payment := range inv.Payments {
		doc.Payments = append(doc.Payments, paymentDocument{
			ID:        payment.ID,
			Amount:    payment.Amount.InexactFloat64(),
			Method:    string(payment.Method),
			Reference: payment.Reference,
			Date:      payment.Date.UTC(),
			Notes:     payment.Notes,
		})
	}
	return doc
}

func (d invoiceDocument) toDomain(id string) domain.Invoice {
	client := d.ClientInfo.toDomain(d.ClientID)
	client.Source = d.ClientSource

	inv := domain.Invoice{
		ID:            id,
		InvoiceNumber: d.InvoiceNumber,
		Type:          domain.InvoiceType(d.Type),
		OrderID:       d.OrderID,
		ClientID:      d.ClientID,
		Client:        client,
		Items:         make([]domain.InvoiceItem, 0, len(d.Items)),
		Currency:      d.Currency,
		Subtotal:      money(d.Subtotal),
		Tax:           money(d.Tax),
		Discount:      money(d.Discount),
		DeliveryFee:   money(d.DeliveryFee),
		TotalAmount:   money(d.TotalAmount),
		PaidAmount:    money(d.PaidAmount),
		Payments:      make([]domain.Payment, 0, len(d.Payments)),
		IssueDate:     d.IssueDate.UTC(),
		DueDate:       d.DueDate.UTC(),
		Status:        domain.InvoiceStatus(d.Status),
		Notes:         d.Notes,
		PDFObject:     d.PDFObject,
		PaidAt:        utcPtr(d.PaidAt),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
		Version:       d.Version,
	}
	for _, item := range d.Items {
		inv.Items = append(inv.Items, domain.InvoiceItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			UnitPrice: money(item.UnitPrice),
			LineTotal: money(item.LineTotal),
		})
	}
	for _, payment := range d.Payments {
		inv.Payments = append(inv.Payments, domain.Payment{
			ID:        payment.ID,
			Amount:    money(payment.Amount),
			Method:    domain.PaymentMethod(payment.Method),
			Reference: payment.Reference,
			Date:      payment.Date.UTC(),
			Notes:     payment.Notes,
		})
	}
	return inv
}

type productDocument struct {
	Name          string    `firestore:"name"`
	Category      string    `firestore:"category,omitempty"`
	Unit          string    `firestore:"unit,omitempty"`
	Price         float64   `firestore:"price"`
	StockQuantity int       `firestore:"stockQuantity"`
	IsAvailable   bool      `firestore:"isAvailable"`
	Variants      []string  `firestore:"variants,omitempty"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          d.Name,
		Category:      d.Category,
		Unit:          d.Unit,
		Price:         money(d.Price),
		StockQuantity: d.StockQuantity,
		IsAvailable:   d.IsAvailable,
		Variants:      append([]string(nil), d.Variants...),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

func newClientDocument(client domain.ClientSnapshot) clientDocument {
	return clientDocument{
		Name:    client.Name,
		Email:   client.Email,
		Phone:   client.Phone,
		Address: newAddressDocument(client.Address),
	}
}

func (d clientDocument) toDomain(id string) domain.ClientSnapshot {
	return domain.ClientSnapshot{
		ID:      id,
		Name:    d.Name,
		Email:   d.Email,
		Phone:   d.Phone,
		Address: d.Address.toDomain(),
	}
}

func newAddressDocument(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

// money rounds stored floats back to cents.
func money(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(2)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
