package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const (
	invoiceIDPrefix = "inv_"
	paymentIDPrefix = "pay_"
)

// Event names published by the invoice and order workflows.
const (
	EventOrderCreated            = "order:created"
	EventOrderUpdated            = "order:updated"
	EventOrderDeliveryFeeUpdated = "order:delivery_fee_updated"
	EventOrderCancelled          = "order:cancelled"
	EventOrderDeleted            = "order:deleted"
	EventProductLowStock         = "product:low-stock"
	EventInvoiceCreated          = "invoice:created"
	EventInvoicePaymentRecorded  = "invoice:payment_recorded"
	EventInvoiceStatusChanged    = "invoice:status_changed"
)

// InvoiceServiceDeps bundles collaborators required to construct the invoice service.
type InvoiceServiceDeps struct {
	Invoices      repositories.InvoiceRepository
	Clients       *ClientDirectory
	Sequencer     NumberSequencer
	DueDays       int
	Currency      string
	Documents     InvoiceDocuments
	Events        EventPublisher
	Notifications *NotificationDispatcher
	Clock         func() time.Time
	IDGenerator   func() string
	Tracer        trace.TracerProvider
	Meter         metric.MeterProvider
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	invoices      repositories.InvoiceRepository
	clients       *ClientDirectory
	sequencer     NumberSequencer
	derivation    InvoiceDerivation
	documents     InvoiceDocuments
	events        EventPublisher
	notifications *NotificationDispatcher
	clock         func() time.Time
	newID         func() string
	telemetry     telemetry
	logger        func(context.Context, string, map[string]any)
}

// NewInvoiceService wires dependencies into a concrete InvoiceService implementation.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Invoices == nil {
		return nil, errors.New("invoice service: invoice repository is required")
	}
	if deps.Sequencer == nil {
		return nil, errors.New("invoice service: number sequencer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &invoiceService{
		invoices:      deps.Invoices,
		clients:       deps.Clients,
		sequencer:     deps.Sequencer,
		derivation:    NewInvoiceDerivation(deps.DueDays, deps.Currency),
		documents:     deps.Documents,
		events:        deps.Events,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		telemetry: newTelemetry(deps.Tracer, deps.Meter),
		logger:    logger,
	}, nil
}

var _ InvoiceService = (*invoiceService)(nil)

func (s *invoiceService) CreateForOrder(ctx context.Context, order domain.Order, client domain.ClientSnapshot) (domain.Invoice, error) {
	if order.TotalAmount.IsPending() || order.DeliveryFeePending {
		return domain.Invoice{}, domain.NewStateError(domain.StateReasonTotalNotYetResolved, "order %s total is not resolved yet", order.ID)
	}

	existing, err := s.invoices.FindByOrderID(ctx, order.ID)
	switch {
	case err == nil:
		return existing, nil
	case !isRepoNotFound(err):
		return domain.Invoice{}, mapRepositoryError("invoices.by_order", "invoice for order "+order.ID, err)
	}

	now := s.clock()
	number, err := s.nextInvoiceNumber(ctx, now)
	if err != nil {
		return domain.Invoice{}, err
	}

	invoice, ok := s.derivation.FromOrder(order, client, InvoiceHeader{
		ID:            invoiceIDPrefix + s.newID(),
		InvoiceNumber: number,
		IssueDate:     now,
	})
	if !ok {
		return domain.Invoice{}, domain.NewStateError(domain.StateReasonTotalNotYetResolved, "order %s total is not resolved yet", order.ID)
	}

	if err := s.invoices.Insert(ctx, invoice); err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.insert", "invoice "+invoice.InvoiceNumber, err)
	}

	s.telemetry.invoicesCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(invoice.Type))))
	s.publish(ctx, DomainEvent{
		Name:       EventInvoiceCreated,
		OrderID:    order.ID,
		InvoiceID:  invoice.ID,
		OccurredAt: now,
		Payload: map[string]any{
			"invoiceNumber": invoice.InvoiceNumber,
			"totalAmount":   invoice.TotalAmount.StringFixed(2),
		},
	})
	return invoice, nil
}

func (s *invoiceService) CreateStandalone(ctx context.Context, cmd CreateStandaloneInvoiceCommand) (domain.Invoice, error) {
	if s.clients == nil {
		return domain.Invoice{}, errors.New("invoice service: client directory is not configured")
	}
	client, err := s.clients.Resolve(ctx, cmd.ClientID)
	if err != nil {
		return domain.Invoice{}, err
	}

	now := s.clock()
	if cmd.DueDate != nil && cmd.DueDate.Before(now.Truncate(24*time.Hour)) {
		return domain.Invoice{}, validationError("due date must not be in the past")
	}

	// build before drawing a number so rejected input does not consume a sequence value
	header := InvoiceHeader{ID: invoiceIDPrefix + s.newID(), IssueDate: now, DueDate: cmd.DueDate, Notes: cmd.Notes}
	invoice, err := s.derivation.Standalone(cmd.Items, cmd.Tax, cmd.Discount, cmd.DeliveryFee, client, header, cmd.Draft)
	if err != nil {
		return domain.Invoice{}, err
	}
	number, err := s.nextInvoiceNumber(ctx, now)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice.InvoiceNumber = number

	if err := s.invoices.Insert(ctx, invoice); err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.insert", "invoice "+invoice.InvoiceNumber, err)
	}

	s.telemetry.invoicesCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(invoice.Type))))
	s.publish(ctx, DomainEvent{
		Name:       EventInvoiceCreated,
		InvoiceID:  invoice.ID,
		OccurredAt: now,
		Payload: map[string]any{
			"invoiceNumber": invoice.InvoiceNumber,
			"totalAmount":   invoice.TotalAmount.StringFixed(2),
			"actor":         strings.TrimSpace(cmd.ActorID),
		},
	})
	if invoice.Status != domain.InvoiceStatusDraft {
		s.notifications.InvoiceIssued(ctx, invoice)
	}
	return invoice, nil
}

func (s *invoiceService) SyncWithOrder(ctx context.Context, order domain.Order) (domain.Invoice, error) {
	current, err := s.invoices.FindByOrderID(ctx, order.ID)
	if err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.by_order", "invoice for order "+order.ID, err)
	}
	if len(current.Payments) > 0 || current.Status == domain.InvoiceStatusCancelled {
		return domain.Invoice{}, domain.NewStateError(domain.StateReasonInvoiceNotEditable,
			"invoice %s is %s with %d payments", current.InvoiceNumber, current.Status, len(current.Payments))
	}

	now := s.clock()
	rebuilt, ok := s.derivation.FromOrder(order, current.Client, InvoiceHeader{
		ID:            current.ID,
		InvoiceNumber: current.InvoiceNumber,
		IssueDate:     current.IssueDate,
		DueDate:       &current.DueDate,
		Notes:         current.Notes,
	})
	if !ok {
		return domain.Invoice{}, domain.NewStateError(domain.StateReasonTotalNotYetResolved, "order %s total is not resolved yet", order.ID)
	}
	rebuilt.CreatedAt = current.CreatedAt
	rebuilt.UpdatedAt = now
	rebuilt.PDFObject = ""
	refreshStatus(&rebuilt, now)

	if err := s.invoices.Update(ctx, rebuilt, current.Version); err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.update", "invoice "+current.ID, err)
	}
	rebuilt.Version = current.Version + 1
	return rebuilt, nil
}

func (s *invoiceService) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (invoice domain.Invoice, err error) {
	ctx, span := s.telemetry.start(ctx, "invoices.RecordPayment", attribute.String("invoice.id", cmd.InvoiceID))
	defer func() { end(span, err) }()

	invoiceID := strings.TrimSpace(cmd.InvoiceID)
	if invoiceID == "" {
		return domain.Invoice{}, validationError("invoice id is required")
	}

	current, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.get", "invoice "+invoiceID, err)
	}

	now := s.clock()
	date := now
	if cmd.Date != nil {
		date = cmd.Date.UTC()
	}
	method := cmd.Method
	if method == "" {
		method = domain.PaymentMethodOther
	}
	payment := domain.Payment{
		ID:        paymentIDPrefix + s.newID(),
		Amount:    cmd.Amount,
		Method:    method,
		Reference: strings.TrimSpace(cmd.Reference),
		Date:      date,
		Notes:     strings.TrimSpace(cmd.Notes),
	}

	next := current.Clone()
	if err := ApplyPayment(&next, payment, now); err != nil {
		return domain.Invoice{}, err
	}
	if err := s.invoices.Update(ctx, next, current.Version); err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.update", "invoice "+invoiceID, err)
	}
	next.Version = current.Version + 1

	s.telemetry.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(payment.Method))))
	s.publish(ctx, DomainEvent{
		Name:       EventInvoicePaymentRecorded,
		OrderID:    next.OrderID,
		InvoiceID:  next.ID,
		OccurredAt: now,
		Payload: map[string]any{
			"paymentId":  payment.ID,
			"amount":     payment.Amount.StringFixed(2),
			"paidAmount": next.PaidAmount.StringFixed(2),
			"status":     string(next.Status),
			"actor":      strings.TrimSpace(cmd.ActorID),
		},
	})
	s.notifications.PaymentRecorded(ctx, next, payment)
	return next, nil
}

func (s *invoiceService) UpdateStatus(ctx context.Context, cmd UpdateInvoiceStatusCommand) (domain.Invoice, error) {
	invoiceID := strings.TrimSpace(cmd.InvoiceID)
	if invoiceID == "" {
		return domain.Invoice{}, validationError("invoice id is required")
	}
	if !cmd.Status.Valid() {
		return domain.Invoice{}, validationError("unknown invoice status %q", cmd.Status)
	}

	current, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.get", "invoice "+invoiceID, err)
	}

	now := s.clock()
	next := current.Clone()
	switch {
	case cmd.Status == domain.InvoiceStatusPending && current.Status == domain.InvoiceStatusDraft:
		next.Status = domain.InvoiceStatusPending
		next.Status = DeriveInvoiceStatus(next, now)
	case cmd.Status == domain.InvoiceStatusCancelled && current.Status != domain.InvoiceStatusPaid && current.Status != domain.InvoiceStatusCancelled:
		next.Status = domain.InvoiceStatusCancelled
	default:
		return domain.Invoice{}, domain.NewStateError(domain.StateReasonInvoiceNotEditable,
			"invoice %s cannot move from %s to %s", current.InvoiceNumber, current.Status, cmd.Status)
	}
	next.UpdatedAt = now

	if err := s.invoices.Update(ctx, next, current.Version); err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.update", "invoice "+invoiceID, err)
	}
	next.Version = current.Version + 1

	s.publish(ctx, DomainEvent{
		Name:       EventInvoiceStatusChanged,
		OrderID:    next.OrderID,
		InvoiceID:  next.ID,
		OccurredAt: now,
		Payload: map[string]any{
			"previousStatus": string(current.Status),
			"status":         string(next.Status),
			"actor":          strings.TrimSpace(cmd.ActorID),
		},
	})
	if current.Status == domain.InvoiceStatusDraft && next.Status != domain.InvoiceStatusCancelled {
		s.notifications.InvoiceIssued(ctx, next)
	}
	return next, nil
}

func (s *invoiceService) RefreshOverdue(ctx context.Context) (int, error) {
	now := s.clock()
	candidates, err := s.invoices.List(ctx, repositories.InvoiceListFilter{
		Status:    []domain.InvoiceStatus{domain.InvoiceStatusPending, domain.InvoiceStatusPartiallyPaid},
		DueBefore: &now,
	})
	if err != nil {
		return 0, mapRepositoryError("invoices.list", "invoices", err)
	}

	changed := 0
	for _, invoice := range candidates {
		status := DeriveInvoiceStatus(invoice, now)
		if status == invoice.Status {
			continue
		}
		next := invoice.Clone()
		next.Status = status
		next.UpdatedAt = now
		if err := s.invoices.Update(ctx, next, invoice.Version); err != nil {
			if isRepoConflict(err) {
				continue
			}
			return changed, mapRepositoryError("invoices.update", "invoice "+invoice.ID, err)
		}
		changed++
	}
	return changed, nil
}

func (s *invoiceService) DeleteForOrder(ctx context.Context, orderID string) error {
	invoice, err := s.invoices.FindByOrderID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return mapRepositoryError("invoices.by_order", "invoice for order "+orderID, err)
	}
	if len(invoice.Payments) > 0 || invoice.PaidAmount.IsPositive() {
		return domain.NewStateError(domain.StateReasonNotDeletable, "invoice %s has recorded payments", invoice.InvoiceNumber)
	}
	if err := s.invoices.Delete(ctx, invoice.ID); err != nil && !isRepoNotFound(err) {
		return mapRepositoryError("invoices.delete", "invoice "+invoice.ID, err)
	}
	return nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.Invoice{}, validationError("invoice id is required")
	}
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.get", "invoice "+invoiceID, err)
	}
	return invoice, nil
}

func (s *invoiceService) FindByOrder(ctx context.Context, orderID string) (domain.Invoice, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Invoice{}, validationError("order id is required")
	}
	invoice, err := s.invoices.FindByOrderID(ctx, orderID)
	if err != nil {
		return domain.Invoice{}, mapRepositoryError("invoices.by_order", "invoice for order "+orderID, err)
	}
	return invoice, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceListFilter) ([]domain.Invoice, error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return nil, validationError("unknown invoice status %q", status)
		}
	}
	invoices, err := s.invoices.List(ctx, repositories.InvoiceListFilter{
		ClientID: strings.TrimSpace(filter.ClientID),
		Status:   filter.Status,
		Limit:    normalizeLimit(filter.Limit),
	})
	if err != nil {
		return nil, mapRepositoryError("invoices.list", "invoices", err)
	}
	return invoices, nil
}

func (s *invoiceService) RenderPDF(ctx context.Context, invoiceID string) ([]byte, error) {
	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if s.documents == nil {
		return nil, ErrNotifierUnavailable
	}
	return s.documents.Document(ctx, invoice)
}

func (s *invoiceService) nextInvoiceNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.sequencer.Next(ctx, SequenceInvoice, now)
	if err != nil {
		return "", err
	}
	return FormatInvoiceNumber(now, seq), nil
}

func (s *invoiceService) publish(ctx context.Context, event DomainEvent) {
	publishEvent(ctx, s.events, s.logger, event)
}

func publishEvent(ctx context.Context, events EventPublisher, logger func(context.Context, string, map[string]any), event DomainEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"event":   event.Name,
			"order":   event.OrderID,
			"invoice": event.InvoiceID,
			"error":   err.Error(),
		})
	}
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
