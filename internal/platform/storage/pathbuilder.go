package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// invoiceNumberPattern matches INV-{YY}-{MM}-{NNNN}; the sequence may outgrow four digits.
var invoiceNumberPattern = regexp.MustCompile(`^INV-(\d{2})-(0[1-9]|1[0-2])-\d{4,}$`)

// InvoiceDocumentPath files a document under the issue month its invoice number carries:
// INV-24-10-0007 with invoice.pdf becomes invoices/2024/10/INV-24-10-0007/invoice.pdf.
func InvoiceDocumentPath(invoiceNumber, fileName string) (string, error) {
	number := strings.TrimSpace(invoiceNumber)
	parts := invoiceNumberPattern.FindStringSubmatch(number)
	if parts == nil {
		return "", fmt.Errorf("storage: invoice number %q is not INV-YY-MM-NNNN", invoiceNumber)
	}
	name := strings.TrimSpace(fileName)
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("storage: invalid document file name %q", fileName)
	}
	return fmt.Sprintf("invoices/20%s/%s/%s/%s", parts[1], parts[2], number, name), nil
}
