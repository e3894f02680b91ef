package storage

import "testing"

func TestInvoiceDocumentPathPartitionsByIssueMonth(t *testing.T) {
	cases := map[string]string{
		"INV-24-10-0007":  "invoices/2024/10/INV-24-10-0007/invoice.pdf",
		"INV-25-01-12345": "invoices/2025/01/INV-25-01-12345/invoice.pdf",
	}
	for number, want := range cases {
		got, err := InvoiceDocumentPath(number, "invoice.pdf")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", number, err)
		}
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestInvoiceDocumentPathRejectsInvalidInput(t *testing.T) {
	cases := [][2]string{
		{"INV-2025-001", "invoice.pdf"},
		{"INV-24-13-0001", "invoice.pdf"},
		{"../INV-24-10-0001", "invoice.pdf"},
		{"INV-24-10-0001", "a/b.pdf"},
		{"INV-24-10-0001", "..pdf"},
		{"INV-24-10-0001", `a\b.pdf`},
		{"INV-24-10-0001", " "},
	}
	for _, tc := range cases {
		if _, err := InvoiceDocumentPath(tc[0], tc[1]); err == nil {
			t.Errorf("expected error for %q/%q", tc[0], tc[1])
		}
	}
}
