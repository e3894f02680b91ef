package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

type recordingWriter struct {
	buf         bytes.Buffer
	closed      bool
	closeErr    error
	object      string
	contentType string
}

func (w *recordingWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *recordingWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newTestArchive(w *recordingWriter) *InvoiceArchive {
	return &InvoiceArchive{
		bucket: "od-invoices",
		writer: func(_ context.Context, object, contentType string) io.WriteCloser {
			w.object = object
			w.contentType = contentType
			return w
		},
	}
}

func TestInvoiceArchivePut(t *testing.T) {
	w := &recordingWriter{}
	archive := newTestArchive(w)

	object, err := archive.Put(context.Background(), "INV-25-03-0001", "INV-25-03-0001.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if object != "invoices/2025/03/INV-25-03-0001/INV-25-03-0001.pdf" || w.object != object {
		t.Fatalf("unexpected object %s (writer saw %s)", object, w.object)
	}
	if w.contentType != "application/pdf" || w.buf.String() != "%PDF" || !w.closed {
		t.Fatalf("unexpected writer state %+v", w)
	}
}

func TestInvoiceArchivePutSurfacesFinalizeError(t *testing.T) {
	w := &recordingWriter{closeErr: errors.New("precondition failed")}
	archive := newTestArchive(w)

	if _, err := archive.Put(context.Background(), "INV-25-03-0002", "invoice.pdf", []byte("x")); err == nil {
		t.Fatalf("expected finalize error")
	}
}

func TestInvoiceArchivePutRejectsBadNumber(t *testing.T) {
	archive := newTestArchive(&recordingWriter{})
	if _, err := archive.Put(context.Background(), "../INV", "x.pdf", nil); err == nil {
		t.Fatalf("expected path validation error")
	}
}

func TestNewInvoiceArchiveRequiresClient(t *testing.T) {
	if _, err := NewInvoiceArchive(nil, "bucket"); err == nil {
		t.Fatalf("expected error")
	}
}
