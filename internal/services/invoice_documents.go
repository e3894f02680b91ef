package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const invoicePDFFilename = "invoice.pdf"

// InvoiceDocumentsDeps bundles the renderer and the optional archive.
type InvoiceDocumentsDeps struct {
	Invoices repositories.InvoiceRepository
	Renderer InvoiceRenderer
	Archive  InvoiceArchive
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// InvoiceDocumentService renders invoice PDFs and archives them next to the invoice number.
type InvoiceDocumentService struct {
	invoices repositories.InvoiceRepository
	renderer InvoiceRenderer
	archive  InvoiceArchive
	logger   func(context.Context, string, map[string]any)
}

// NewInvoiceDocumentService constructs the document service.
func NewInvoiceDocumentService(deps InvoiceDocumentsDeps) (*InvoiceDocumentService, error) {
	if deps.Renderer == nil {
		return nil, errors.New("invoice documents: renderer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &InvoiceDocumentService{
		invoices: deps.Invoices,
		renderer: deps.Renderer,
		archive:  deps.Archive,
		logger:   logger,
	}, nil
}

// Document renders the invoice PDF and archives it. Archive failures are logged and the rendered
// bytes are still returned.
func (s *InvoiceDocumentService) Document(ctx context.Context, invoice domain.Invoice) ([]byte, error) {
	pdf, err := s.renderer.Render(ctx, invoice)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", invoice.InvoiceNumber, err)
	}
	if s.archive == nil {
		return pdf, nil
	}

	object, err := s.archive.Put(ctx, invoice.InvoiceNumber, invoicePDFFilename, pdf)
	if err != nil {
		s.logger(ctx, "invoice.pdf.archive.failed", map[string]any{
			"invoiceId": invoice.ID,
			"error":     err.Error(),
		})
		return pdf, nil
	}
	if object != invoice.PDFObject && s.invoices != nil {
		if err := s.invoices.SetPDFObject(ctx, invoice.ID, object); err != nil {
			s.logger(ctx, "invoice.pdf.link.failed", map[string]any{
				"invoiceId": invoice.ID,
				"object":    object,
				"error":     err.Error(),
			})
		}
	}
	return pdf, nil
}
