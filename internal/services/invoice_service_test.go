package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

type memoryArchive struct {
	objects map[string][]byte
	err     error
}

func (a *memoryArchive) Put(_ context.Context, invoiceNumber, filename string, data []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	name := "invoices/" + invoiceNumber + "/" + filename
	a.objects[name] = data
	return name, nil
}

func standaloneCommand(t *testing.T) CreateStandaloneInvoiceCommand {
	t.Helper()
	return CreateStandaloneInvoiceCommand{
		ClientID: "cli_ada",
		Items: []StandaloneItemInput{
			{Name: "Crates", Quantity: 4, Unit: "pc", UnitPrice: dec(t, "12.50")},
		},
		Tax:     dec(t, "5"),
		ActorID: "ops",
	}
}

func TestInvoiceServiceStandaloneLifecycle(t *testing.T) {
	h := newWorkflowHarness(t)
	ctx := context.Background()

	cmd := standaloneCommand(t)
	cmd.Draft = true
	invoice, err := h.invoices.CreateStandalone(ctx, cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusDraft || !invoice.TotalAmount.Equal(dec(t, "55")) {
		t.Fatalf("unexpected invoice %+v", invoice)
	}
	if invoice.InvoiceNumber != "INV-24-10-0001" {
		t.Fatalf("unexpected number %s", invoice.InvoiceNumber)
	}

	issued, err := h.invoices.UpdateStatus(ctx, UpdateInvoiceStatusCommand{InvoiceID: invoice.ID, Status: domain.InvoiceStatusPending})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	h.notify.Wait()
	if issued.Status != domain.InvoiceStatusPending {
		t.Fatalf("expected pending, got %s", issued.Status)
	}
	if len(h.transport.sent()) != 1 {
		t.Fatalf("issuing a draft sends the invoice, got %d emails", len(h.transport.sent()))
	}

	_, err = h.invoices.UpdateStatus(ctx, UpdateInvoiceStatusCommand{InvoiceID: invoice.ID, Status: domain.InvoiceStatusPaid})
	if reason, _ := domain.StateReasonOf(err); reason != domain.StateReasonInvoiceNotEditable {
		t.Fatalf("paid cannot be set by hand, got %v", err)
	}

	if _, err := h.invoices.RecordPayment(ctx, RecordPaymentCommand{InvoiceID: invoice.ID, Amount: dec(t, "55")}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	_, err = h.invoices.UpdateStatus(ctx, UpdateInvoiceStatusCommand{InvoiceID: invoice.ID, Status: domain.InvoiceStatusCancelled})
	if !errors.Is(err, domain.ErrState) {
		t.Fatalf("paid invoices cannot be cancelled, got %v", err)
	}
}

func TestInvoiceServiceStandaloneValidation(t *testing.T) {
	h := newWorkflowHarness(t)
	ctx := context.Background()

	cmd := standaloneCommand(t)
	cmd.ClientID = "cli_ghost"
	if _, err := h.invoices.CreateStandalone(ctx, cmd); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	cmd = standaloneCommand(t)
	past := fixtureNow.AddDate(0, 0, -3)
	cmd.DueDate = &past
	if _, err := h.invoices.CreateStandalone(ctx, cmd); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInvoiceServiceRefreshOverdue(t *testing.T) {
	h := newWorkflowHarness(t)
	ctx := context.Background()

	open, err := h.invoices.CreateStandalone(ctx, standaloneCommand(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	settled, err := h.invoices.CreateStandalone(ctx, standaloneCommand(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.invoices.RecordPayment(ctx, RecordPaymentCommand{InvoiceID: settled.ID, Amount: settled.TotalAmount}); err != nil {
		t.Fatalf("pay: %v", err)
	}

	h.clock.Advance(8 * 24 * time.Hour)
	changed, err := h.invoices.RefreshOverdue(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected one overdue invoice, got %d", changed)
	}
	got, _ := h.invoices.GetInvoice(ctx, open.ID)
	if got.Status != domain.InvoiceStatusOverdue {
		t.Fatalf("expected overdue, got %s", got.Status)
	}
	got, _ = h.invoices.GetInvoice(ctx, settled.ID)
	if got.Status != domain.InvoiceStatusPaid {
		t.Fatalf("paid invoices never become overdue, got %s", got.Status)
	}

	if _, err := h.invoices.RecordPayment(ctx, RecordPaymentCommand{InvoiceID: open.ID, Amount: dec(t, "1")}); err != nil {
		t.Fatalf("late payment: %v", err)
	}
	got, _ = h.invoices.GetInvoice(ctx, open.ID)
	if got.Status != domain.InvoiceStatusOverdue {
		t.Fatalf("overdue outranks partially paid, got %s", got.Status)
	}
}

func TestInvoiceServiceCreateForOrderRejectsPendingTotal(t *testing.T) {
	h := newWorkflowHarness(t)
	order := resolvedOrder(t)
	order.TotalAmount = domain.Pending()
	order.DeliveryFeePending = true

	_, err := h.invoices.CreateForOrder(context.Background(), order, domain.ClientSnapshot{ID: "cli_ada"})
	if reason, _ := domain.StateReasonOf(err); reason != domain.StateReasonTotalNotYetResolved {
		t.Fatalf("expected total-not-resolved, got %v", err)
	}
}

func TestInvoiceServiceCreateForOrderIsIdempotent(t *testing.T) {
	h := newWorkflowHarness(t)
	ctx := context.Background()
	order := resolvedOrder(t)

	first, err := h.invoices.CreateForOrder(ctx, order, domain.ClientSnapshot{ID: "cli_ada"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := h.invoices.CreateForOrder(ctx, order, domain.ClientSnapshot{ID: "cli_ada"})
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the existing invoice, got %s and %s", first.ID, second.ID)
	}
}

func TestInvoiceDocumentServiceArchivesAndLinks(t *testing.T) {
	h := newWorkflowHarness(t)
	ctx := context.Background()
	invoice, err := h.invoices.CreateStandalone(ctx, standaloneCommand(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.notify.Wait()

	archive := &memoryArchive{}
	docs, _ := NewInvoiceDocumentService(InvoiceDocumentsDeps{Invoices: h.store.Invoices(), Renderer: stubRenderer{}, Archive: archive})
	current, _ := h.invoices.GetInvoice(ctx, invoice.ID)
	pdf, err := docs.Document(ctx, current)
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if string(pdf) != "%PDF-"+invoice.InvoiceNumber {
		t.Fatalf("unexpected pdf %q", pdf)
	}
	stored, _ := h.invoices.GetInvoice(ctx, invoice.ID)
	if stored.PDFObject != "invoices/"+invoice.InvoiceNumber+"/invoice.pdf" {
		t.Fatalf("expected archived object linked, got %q", stored.PDFObject)
	}

	archive.err = errors.New("bucket missing")
	if _, err := docs.Document(ctx, stored); err != nil {
		t.Fatalf("archive failures must not fail rendering: %v", err)
	}
}

func TestInvoiceDocumentLinkKeepsVersion(t *testing.T) {
	h := newWorkflowHarness(t)
	ctx := context.Background()
	invoice, err := h.invoices.CreateStandalone(ctx, standaloneCommand(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.notify.Wait()

	before, _ := h.invoices.GetInvoice(ctx, invoice.ID)
	docs, _ := NewInvoiceDocumentService(InvoiceDocumentsDeps{Invoices: h.store.Invoices(), Renderer: stubRenderer{}, Archive: &memoryArchive{}})
	if _, err := docs.Document(ctx, before); err != nil {
		t.Fatalf("document: %v", err)
	}

	linked, _ := h.invoices.GetInvoice(ctx, invoice.ID)
	if linked.Version != before.Version || linked.PDFObject == "" {
		t.Fatalf("expected pdf linked at version %d, got version %d object %q", before.Version, linked.Version, linked.PDFObject)
	}

	// a payment that read the invoice before the archive finished still commits
	paid := before.Clone()
	if err := ApplyPayment(&paid, domain.Payment{ID: "pay_1", Amount: dec(t, "10")}, h.clock.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := h.store.Invoices().Update(ctx, paid, before.Version); err != nil {
		t.Fatalf("ledger update after archive should not conflict: %v", err)
	}
}
