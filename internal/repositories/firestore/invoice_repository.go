package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const (
	invoicesCollection       = "invoices"
	invoiceNumbersCollection = "invoiceNumbers"
)

type invoiceNumberDocument struct {
	InvoiceID string    `firestore:"invoiceId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// InvoiceRepository implements repositories.InvoiceRepository. Invoice numbers are reserved in a
// companion collection keyed by number so a duplicate number fails the insert transaction.
type InvoiceRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[invoiceDocument]
	numbers  *pfirestore.BaseRepository[invoiceNumberDocument]
}

var _ repositories.InvoiceRepository = (*InvoiceRepository)(nil)

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	return &InvoiceRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[invoiceDocument](provider, invoicesCollection, nil, nil),
		numbers:  pfirestore.NewBaseRepository[invoiceNumberDocument](provider, invoiceNumbersCollection, nil, nil),
	}, nil
}

func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	err := r.provider.RunTransaction(ctx, pfirestore.TxDocumentWrite, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, invoice.ID)
		if err != nil {
			return err
		}
		numberRef, err := r.numbers.DocumentRef(ctx, invoice.InvoiceNumber)
		if err != nil {
			return err
		}
		claimed, err := tx.Get(numberRef)
		switch {
		case err == nil:
			var owner invoiceNumberDocument
			if err := claimed.DataTo(&owner); err != nil {
				return fmt.Errorf("decode invoice number %s: %w", invoice.InvoiceNumber, err)
			}
			return pfirestore.NewDuplicateNumber("invoices.insert", invoice.InvoiceNumber, owner.InvoiceID)
		case !pfirestore.IsNotFound(err):
			return err
		}
		if err := tx.Create(numberRef, invoiceNumberDocument{InvoiceID: invoice.ID, CreatedAt: invoice.CreatedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(ref, newInvoiceDocument(invoice))
	})
	return pfirestore.WrapError("invoices.insert", err)
}

func (r *InvoiceRepository) Update(ctx context.Context, invoice domain.Invoice, expectedVersion int64) error {
	err := r.provider.RunTransaction(ctx, pfirestore.TxDocumentWrite, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, invoice.ID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return pfirestore.NewNotFound("invoices.update", invoice.ID)
			}
			return err
		}
		var current invoiceDocument
		if err := snapshot.DataTo(&current); err != nil {
			return fmt.Errorf("decode invoice %s: %w", invoice.ID, err)
		}
		if current.Version != expectedVersion {
			return pfirestore.NewVersionConflict("invoices.update", "invoice "+invoice.ID, current.Version, expectedVersion)
		}

		doc := newInvoiceDocument(invoice)
		doc.Version = expectedVersion + 1
		return tx.Set(ref, doc)
	})
	return pfirestore.WrapError("invoices.update", err)
}

// Delete removes the invoice and releases its number reservation.
func (r *InvoiceRepository) Delete(ctx context.Context, invoiceID string) error {
	err := r.provider.RunTransaction(ctx, pfirestore.TxDocumentWrite, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, invoiceID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return pfirestore.NewNotFound("invoices.delete", invoiceID)
			}
			return err
		}
		var current invoiceDocument
		if err := snapshot.DataTo(&current); err != nil {
			return fmt.Errorf("decode invoice %s: %w", invoiceID, err)
		}
		if current.InvoiceNumber != "" {
			numberRef, err := r.numbers.DocumentRef(ctx, current.InvoiceNumber)
			if err != nil {
				return err
			}
			if err := tx.Delete(numberRef); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
	return pfirestore.WrapError("invoices.delete", err)
}

func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	doc, err := r.base.Get(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, pfirestore.WrapError("invoices.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *InvoiceRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.Invoice{}, pfirestore.WrapError("invoices.by_order", err)
	}
	if len(docs) == 0 {
		return domain.Invoice{}, pfirestore.NewNotFound("invoices.by_order", "invoice for order "+orderID)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *InvoiceRepository) List(ctx context.Context, filter repositories.InvoiceListFilter) ([]domain.Invoice, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if id := strings.TrimSpace(filter.ClientID); id != "" {
			q = q.Where("clientId", "==", id)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.DueBefore != nil {
			q = q.Where("dueDate", "<", filter.DueBefore.UTC()).OrderBy("dueDate", firestore.Asc)
		} else {
			q = q.OrderBy("createdAt", firestore.Desc)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, pfirestore.WrapError("invoices.list", err)
	}

	invoices := make([]domain.Invoice, 0, len(docs))
	for _, doc := range docs {
		invoices = append(invoices, doc.Data.toDomain(doc.ID))
	}
	return invoices, nil
}

func (r *InvoiceRepository) HighestNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("invoiceNumber", ">=", prefix).
			Where("invoiceNumber", "<", prefix+"\uf8ff").
			OrderBy("invoiceNumber", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return "", pfirestore.WrapError("invoices.highest_number", err)
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].Data.InvoiceNumber, nil
}

// SetPDFObject patches only pdfObject; the version is left alone.
func (r *InvoiceRepository) SetPDFObject(ctx context.Context, invoiceID, object string) error {
	_, err := r.base.Update(ctx, invoiceID, []firestore.Update{{Path: "pdfObject", Value: object}}, firestore.Exists)
	return pfirestore.WrapError("invoices.set_pdf", err)
}

func (r *InvoiceRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	count, err := r.base.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", from.UTC()).Where("createdAt", "<", to.UTC())
	})
	if err != nil {
		return 0, pfirestore.WrapError("invoices.count", err)
	}
	return count, nil
}
