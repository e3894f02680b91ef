package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

const defaultDispatchTimeout = 2 * time.Minute

// InvoiceDocuments renders, and where configured archives, the PDF for an invoice.
type InvoiceDocuments interface {
	Document(ctx context.Context, invoice domain.Invoice) ([]byte, error)
}

// NotificationDispatcherDeps bundles collaborators for the dispatcher.
type NotificationDispatcherDeps struct {
	Notifier    *Notifier
	Documents   InvoiceDocuments
	AdminEmails []string
	Currency    string
	Timeout     time.Duration
	Meter       metric.MeterProvider
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// NotificationDispatcher sends workflow emails in the background. Failures are logged and never
// reach the caller.
type NotificationDispatcher struct {
	notifier  *Notifier
	documents InvoiceDocuments
	admins    []string
	composer  emailComposer
	timeout   time.Duration
	failed    metric.Int64Counter
	logger    func(context.Context, string, map[string]any)
	wg        sync.WaitGroup
}

// NewNotificationDispatcher constructs a dispatcher. A nil notifier produces a dispatcher that
// drops every notification.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) *NotificationDispatcher {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NotificationDispatcher{
		notifier:  deps.Notifier,
		documents: deps.Documents,
		admins:    compactRecipients(deps.AdminEmails),
		composer:  newEmailComposer(deps.Currency),
		timeout:   timeout,
		failed:    newTelemetry(nil, deps.Meter).notificationsFailed,
		logger:    logger,
	}
}

// Wait blocks until every dispatched notification has finished.
func (d *NotificationDispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// OrderCreated notifies the client and the admins. When the order already has an invoice it is
// sent as well.
func (d *NotificationDispatcher) OrderCreated(ctx context.Context, order domain.Order, client domain.ClientSnapshot, invoice *domain.Invoice) {
	order = order.Clone()
	inv := cloneInvoicePtr(invoice)
	d.dispatch(ctx, "order.created", order.ID, func(ctx context.Context) error {
		var errs []error
		if client.Email != "" {
			errs = append(errs, d.compose(ctx, func() (Message, error) {
				return d.composer.orderCreatedCustomer([]string{client.Email}, order, client)
			}))
		}
		if len(d.admins) > 0 {
			errs = append(errs, d.compose(ctx, func() (Message, error) {
				return d.composer.orderCreatedAdmin(d.admins, order, client)
			}))
		}
		if inv != nil {
			errs = append(errs, d.sendInvoice(ctx, *inv))
		}
		return errors.Join(errs...)
	})
}

// DeliveryFeeUpdated sends the final total and, when it was just derived, the invoice.
func (d *NotificationDispatcher) DeliveryFeeUpdated(ctx context.Context, order domain.Order, client domain.ClientSnapshot, invoice *domain.Invoice) {
	order = order.Clone()
	inv := cloneInvoicePtr(invoice)
	d.dispatch(ctx, "order.delivery_fee_updated", order.ID, func(ctx context.Context) error {
		var errs []error
		if client.Email != "" {
			errs = append(errs, d.compose(ctx, func() (Message, error) {
				return d.composer.deliveryFeeUpdated([]string{client.Email}, order, client)
			}))
		}
		if inv != nil {
			errs = append(errs, d.sendInvoice(ctx, *inv))
		}
		return errors.Join(errs...)
	})
}

// OrderCancelled informs the client.
func (d *NotificationDispatcher) OrderCancelled(ctx context.Context, order domain.Order, client domain.ClientSnapshot) {
	if client.Email == "" {
		return
	}
	order = order.Clone()
	d.dispatch(ctx, "order.cancelled", order.ID, func(ctx context.Context) error {
		return d.compose(ctx, func() (Message, error) {
			return d.composer.orderCancelled([]string{client.Email}, order, client)
		})
	})
}

// InvoiceIssued sends an invoice with its PDF attached.
func (d *NotificationDispatcher) InvoiceIssued(ctx context.Context, invoice domain.Invoice) {
	invoice = invoice.Clone()
	d.dispatch(ctx, "invoice.issued", invoice.ID, func(ctx context.Context) error {
		return d.sendInvoice(ctx, invoice)
	})
}

// PaymentRecorded sends a receipt for payment.
func (d *NotificationDispatcher) PaymentRecorded(ctx context.Context, invoice domain.Invoice, payment domain.Payment) {
	if invoice.Client.Email == "" {
		return
	}
	invoice = invoice.Clone()
	d.dispatch(ctx, "invoice.payment_recorded", invoice.ID, func(ctx context.Context) error {
		return d.compose(ctx, func() (Message, error) {
			return d.composer.paymentRecorded([]string{invoice.Client.Email}, invoice, payment)
		})
	})
}

func (d *NotificationDispatcher) sendInvoice(ctx context.Context, invoice domain.Invoice) error {
	if strings.TrimSpace(invoice.Client.Email) == "" {
		return nil
	}
	msg, err := d.composer.invoiceIssued([]string{invoice.Client.Email}, invoice)
	if err != nil {
		return err
	}
	if d.documents != nil {
		pdf, err := d.documents.Document(ctx, invoice)
		if err != nil {
			// the email still goes out without the attachment
			d.logger(ctx, "invoice.pdf.failed", map[string]any{
				"invoiceId":     invoice.ID,
				"invoiceNumber": invoice.InvoiceNumber,
				"error":         err.Error(),
			})
		} else {
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    invoice.InvoiceNumber + ".pdf",
				ContentType: "application/pdf",
				Data:        pdf,
			})
		}
	}
	return d.notifier.SendEmail(ctx, msg)
}

func (d *NotificationDispatcher) compose(ctx context.Context, build func() (Message, error)) error {
	msg, err := build()
	if err != nil {
		return err
	}
	return d.notifier.SendEmail(ctx, msg)
}

func (d *NotificationDispatcher) dispatch(ctx context.Context, kind, subjectID string, send func(context.Context) error) {
	if d == nil || d.notifier == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		runCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()
		if err := send(runCtx); err != nil {
			d.failed.Add(runCtx, 1, metric.WithAttributes(attribute.String("kind", kind)))
			d.logger(runCtx, "notification.dispatch.failed", map[string]any{
				"kind":  kind,
				"id":    subjectID,
				"error": err.Error(),
			})
		}
	}()
}

func cloneInvoicePtr(invoice *domain.Invoice) *domain.Invoice {
	if invoice == nil {
		return nil
	}
	cloned := invoice.Clone()
	return &cloned
}
