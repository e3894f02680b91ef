// Package pdf renders invoice documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/services"
)

const dateLayout = "2006-01-02"

// InvoiceRenderer lays out an invoice on a single A4 page series using the core Helvetica font.
type InvoiceRenderer struct {
	issuer  string
	printer *message.Printer
}

var _ services.InvoiceRenderer = (*InvoiceRenderer)(nil)

// NewInvoiceRenderer constructs a renderer. issuer is printed in the page header.
func NewInvoiceRenderer(issuer string) *InvoiceRenderer {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = "Orderdesk"
	}
	return &InvoiceRenderer{issuer: issuer, printer: message.NewPrinter(language.English)}
}

// Render produces the PDF bytes. The document creation date is pinned to the invoice issue date
// so re-rendering an unchanged invoice yields identical output.
func (r *InvoiceRenderer) Render(ctx context.Context, invoice domain.Invoice) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCreationDate(invoice.IssueDate.UTC())
	doc.SetCatalogSort(true)
	doc.SetTitle("Invoice "+invoice.InvoiceNumber, true)
	doc.SetAuthor(r.issuer, true)
	doc.SetMargins(18, 18, 18)
	doc.SetAutoPageBreak(true, 18)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 10, tr(r.issuer), "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 11)
	doc.CellFormat(0, 6, tr("Invoice "+invoice.InvoiceNumber), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 6, "Status: "+strings.ToUpper(strings.ReplaceAll(string(invoice.Status), "_", " ")), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 6, "Issued: "+formatDate(invoice.IssueDate)+"    Due: "+formatDate(invoice.DueDate), "", 1, "L", false, 0, "")
	doc.Ln(4)

	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 11)
	for _, line := range clientLines(invoice.Client) {
		doc.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
	}
	doc.Ln(4)

	widths := []float64{80, 20, 20, 27, 27}
	doc.SetFont("Helvetica", "B", 10)
	doc.SetFillColor(235, 235, 235)
	for i, heading := range []string{"Item", "Qty", "Unit", "Unit price", "Total"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		doc.CellFormat(widths[i], 7, heading, "B", 0, align, true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 10)
	for _, item := range invoice.Items {
		name := item.Name
		if item.Variant != "" {
			name += " (" + item.Variant + ")"
		}
		doc.CellFormat(widths[0], 6, tr(name), "", 0, "L", false, 0, "")
		doc.CellFormat(widths[1], 6, fmt.Sprintf("%d", item.Quantity), "", 0, "R", false, 0, "")
		doc.CellFormat(widths[2], 6, tr(item.Unit), "", 0, "R", false, 0, "")
		doc.CellFormat(widths[3], 6, r.money(invoice.Currency, item.UnitPrice), "", 0, "R", false, 0, "")
		doc.CellFormat(widths[4], 6, r.money(invoice.Currency, item.LineTotal), "", 1, "R", false, 0, "")
	}
	doc.Ln(3)

	labelWidth := widths[0] + widths[1] + widths[2] + widths[3]
	totals := []struct {
		label string
		value decimal.Decimal
		bold  bool
	}{
		{"Subtotal", invoice.Subtotal, false},
		{"Tax", invoice.Tax, false},
		{"Delivery", invoice.DeliveryFee, false},
		{"Discount", invoice.Discount.Neg(), false},
		{"Total", invoice.TotalAmount, true},
		{"Paid", invoice.PaidAmount, false},
		{"Balance due", invoice.Balance(), true},
	}
	for _, row := range totals {
		style := ""
		if row.bold {
			style = "B"
		}
		doc.SetFont("Helvetica", style, 10)
		doc.CellFormat(labelWidth, 6, row.label, "", 0, "R", false, 0, "")
		doc.CellFormat(widths[4], 6, r.money(invoice.Currency, row.value), "", 1, "R", false, 0, "")
	}

	if len(invoice.Payments) > 0 {
		doc.Ln(4)
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(0, 6, "Payments", "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		for _, p := range invoice.Payments {
			line := fmt.Sprintf("%s  %s  %s", formatDate(p.Date), strings.ReplaceAll(string(p.Method), "_", " "), r.money(invoice.Currency, p.Amount))
			if p.Reference != "" {
				line += "  ref " + p.Reference
			}
			doc.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
		}
	}

	if notes := strings.TrimSpace(invoice.Notes); notes != "" {
		doc.Ln(4)
		doc.SetFont("Helvetica", "I", 10)
		doc.MultiCell(0, 5, tr(notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render invoice %s: %w", invoice.InvoiceNumber, err)
	}
	return buf.Bytes(), nil
}

func (r *InvoiceRenderer) money(currency string, value decimal.Decimal) string {
	return r.printer.Sprintf("%v %v", currency, number.Decimal(value.InexactFloat64(), number.Scale(2)))
}

func clientLines(client domain.ClientSnapshot) []string {
	lines := []string{client.Name}
	if client.Email != "" {
		lines = append(lines, client.Email)
	}
	if client.Phone != "" {
		lines = append(lines, client.Phone)
	}
	if addr := client.Address; addr != nil {
		for _, line := range []string{addr.Line1, addr.Line2} {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		cityLine := strings.TrimSpace(strings.Join(nonEmpty(addr.City, addr.State, addr.PostalCode), " "))
		if cityLine != "" {
			lines = append(lines, cityLine)
		}
		if addr.Country != "" {
			lines = append(lines, addr.Country)
		}
	}
	return lines
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}
