// Package storage archives rendered invoice documents in Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"

	"github.com/hanko-field/orderdesk/internal/services"
)

type objectWriterFunc func(ctx context.Context, object, contentType string) io.WriteCloser

// InvoiceArchive writes invoice documents to invoices/{yyyy}/{mm}/{number}/{file} in a single bucket.
// Re-archiving a document overwrites the previous object.
type InvoiceArchive struct {
	bucket string
	writer objectWriterFunc
}

var _ services.InvoiceArchive = (*InvoiceArchive)(nil)

// NewInvoiceArchive constructs an archive backed by the provided Cloud Storage client.
func NewInvoiceArchive(client *gcs.Client, bucket string) (*InvoiceArchive, error) {
	if client == nil {
		return nil, errors.New("storage archive: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage archive: bucket is required")
	}
	handle := client.Bucket(bucket)
	return &InvoiceArchive{
		bucket: bucket,
		writer: func(ctx context.Context, object, contentType string) io.WriteCloser {
			w := handle.Object(object).NewWriter(ctx)
			w.ContentType = contentType
			w.CacheControl = "private, max-age=0"
			return w
		},
	}, nil
}

// Put uploads data and returns the object name.
func (a *InvoiceArchive) Put(ctx context.Context, invoiceNumber, filename string, data []byte) (string, error) {
	if a == nil || a.writer == nil {
		return "", errors.New("storage archive: not initialised")
	}
	object, err := InvoiceDocumentPath(invoiceNumber, filename)
	if err != nil {
		return "", err
	}

	w := a.writer(ctx, object, contentTypeFor(filename))
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage archive: write gs://%s/%s: %w", a.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage archive: finalize gs://%s/%s: %w", a.bucket, object, err)
	}
	return object, nil
}

func contentTypeFor(filename string) string {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return "application/pdf"
	}
	return "application/octet-stream"
}
