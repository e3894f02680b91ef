package firestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

func TestOrderDocumentKeepsPendingAmounts(t *testing.T) {
	now := time.Date(2024, 10, 15, 9, 30, 0, 0, time.UTC)
	order := domain.Order{
		ID:                 "ord_1",
		Status:             domain.OrderStatusPending,
		ShippingMethod:     domain.ShippingMethodDelivery,
		Subtotal:           decimal.RequireFromString("20.10"),
		ShippingCost:       domain.Pending(),
		TotalAmount:        domain.Pending(),
		DeliveryFeePending: true,
		CreatedAt:          now,
	}

	doc := newOrderDocument(order)
	if doc.TotalAmount != domain.PendingSentinel {
		t.Fatalf("expected pending sentinel stored, got %#v", doc.TotalAmount)
	}
	if doc.FinalTotalAmount != nil {
		t.Fatalf("final total must be null while the fee is pending")
	}

	back, err := doc.toDomain("ord_1")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !back.TotalAmount.IsPending() || !back.ShippingCost.IsPending() {
		t.Fatalf("expected pending amounts, got %+v", back)
	}
	if !back.Subtotal.Equal(decimal.RequireFromString("20.10")) {
		t.Fatalf("expected subtotal rounded to cents, got %s", back.Subtotal)
	}
}

func TestOrderDocumentRejectsMissingTotal(t *testing.T) {
	doc := orderDocument{ShippingCost: 0.0}
	if _, err := doc.toDomain("ord_1"); err == nil {
		t.Fatalf("expected error for missing total")
	}
}

func TestInvoiceDocumentCarriesClientSource(t *testing.T) {
	inv := domain.Invoice{
		ID:       "inv_1",
		ClientID: "cli_ada",
		Client:   domain.ClientSnapshot{ID: "cli_ada", Name: "Ada Market", Source: "users"},
		Payments: []domain.Payment{{ID: "pay_1", Amount: decimal.RequireFromString("10.25"), Method: domain.PaymentMethodCash}},
	}
	back := newInvoiceDocument(inv).toDomain("inv_1")
	if back.Client.Source != "users" || back.Client.ID != "cli_ada" {
		t.Fatalf("unexpected client %+v", back.Client)
	}
	if len(back.Payments) != 1 || !back.Payments[0].Amount.Equal(decimal.RequireFromString("10.25")) {
		t.Fatalf("unexpected payments %+v", back.Payments)
	}
}
