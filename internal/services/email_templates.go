package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

var (
	emailTextPolicy = bluemonday.StrictPolicy()
	emailHTMLPolicy = newEmailHTMLPolicy()
	emailMarkdown   = goldmark.New(goldmark.WithExtensions(extension.Table))
)

func newEmailHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	return policy
}

// emailComposer renders notification bodies as markdown plus sanitized HTML.
type emailComposer struct {
	currency string
	printer  *message.Printer
}

func newEmailComposer(currency string) emailComposer {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	return emailComposer{currency: currency, printer: message.NewPrinter(language.English)}
}

func (c emailComposer) money(value decimal.Decimal) string {
	return c.printer.Sprintf("%v %v", c.currency, number.Decimal(value.InexactFloat64(), number.Scale(2)))
}

func (c emailComposer) amount(value domain.Amount) string {
	if v, ok := value.Value(); ok {
		return c.money(v)
	}
	return domain.PendingSentinel
}

func (c emailComposer) message(to []string, subject string, markdown string) (Message, error) {
	var buf bytes.Buffer
	if err := emailMarkdown.Convert([]byte(markdown), &buf); err != nil {
		return Message{}, fmt.Errorf("render email %q: %w", subject, err)
	}
	return Message{
		To:       to,
		Subject:  subject,
		TextBody: markdown,
		HTMLBody: emailHTMLPolicy.Sanitize(buf.String()),
	}, nil
}

// clean strips markup and markdown control characters from user supplied text.
func clean(value string) string {
	value = emailTextPolicy.Sanitize(strings.TrimSpace(value))
	replacer := strings.NewReplacer("|", "/", "*", "", "_", " ", "`", "", "#", "", "[", "(", "]", ")")
	return replacer.Replace(value)
}

func (c emailComposer) itemsTable(b *strings.Builder, names []string, quantities []int, units []string, prices, totals []decimal.Decimal) {
	b.WriteString("| Item | Qty | Unit price | Line total |\n")
	b.WriteString("|---|---:|---:|---:|\n")
	for i := range names {
		qty := fmt.Sprintf("%d", quantities[i])
		if units[i] != "" {
			qty += " " + clean(units[i])
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", clean(names[i]), qty, c.money(prices[i]), c.money(totals[i]))
	}
	b.WriteString("\n")
}

func (c emailComposer) orderSummary(b *strings.Builder, order domain.Order) {
	names := make([]string, len(order.Items))
	quantities := make([]int, len(order.Items))
	units := make([]string, len(order.Items))
	prices := make([]decimal.Decimal, len(order.Items))
	totals := make([]decimal.Decimal, len(order.Items))
	for i, item := range order.Items {
		name := item.Name
		if item.Variant != "" {
			name += " (" + item.Variant + ")"
		}
		names[i], quantities[i], units[i], prices[i], totals[i] = name, item.Quantity, item.Unit, item.UnitPrice, item.LineTotal
	}
	c.itemsTable(b, names, quantities, units, prices, totals)

	fmt.Fprintf(b, "- Subtotal: %s\n", c.money(order.Subtotal))
	fmt.Fprintf(b, "- Delivery: %s\n", c.amount(order.ShippingCost))
	if order.TaxAmount.IsPositive() {
		fmt.Fprintf(b, "- Tax: %s\n", c.money(order.TaxAmount))
	}
	if order.DiscountAmount.IsPositive() {
		fmt.Fprintf(b, "- Discount: -%s\n", c.money(order.DiscountAmount))
	}
	fmt.Fprintf(b, "- **Total: %s**\n\n", c.amount(order.TotalAmount))
	if order.DeliveryFeePending {
		b.WriteString("The delivery fee will be confirmed shortly. We will send the final total and your invoice once it is known.\n\n")
	}
}

func (c emailComposer) orderCreatedCustomer(to []string, order domain.Order, client domain.ClientSnapshot) (Message, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Order %s received\n\n", clean(order.OrderNumber))
	fmt.Fprintf(&b, "Hello %s, thank you for your order.\n\n", clean(client.Name))
	c.orderSummary(&b, order)
	return c.message(to, fmt.Sprintf("Order %s received", order.OrderNumber), b.String())
}

func (c emailComposer) orderCreatedAdmin(to []string, order domain.Order, client domain.ClientSnapshot) (Message, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# New order %s\n\n", clean(order.OrderNumber))
	fmt.Fprintf(&b, "Client: %s (%s)\n\n", clean(client.Name), clean(client.Email))
	fmt.Fprintf(&b, "Shipping: %s", order.ShippingMethod)
	if order.DeliveryService != "" {
		fmt.Fprintf(&b, " via %s", clean(order.DeliveryService))
	}
	b.WriteString("\n\n")
	c.orderSummary(&b, order)
	if order.DeliveryFeePending {
		b.WriteString("**Action required:** set the delivery fee to finalise this order.\n")
	}
	return c.message(to, fmt.Sprintf("New order %s", order.OrderNumber), b.String())
}

func (c emailComposer) deliveryFeeUpdated(to []string, order domain.Order, client domain.ClientSnapshot) (Message, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Final total for order %s\n\n", clean(order.OrderNumber))
	fmt.Fprintf(&b, "Hello %s, the delivery fee for your order has been confirmed.\n\n", clean(client.Name))
	c.orderSummary(&b, order)
	return c.message(to, fmt.Sprintf("Order %s: delivery fee confirmed", order.OrderNumber), b.String())
}

func (c emailComposer) orderCancelled(to []string, order domain.Order, client domain.ClientSnapshot) (Message, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Order %s cancelled\n\n", clean(order.OrderNumber))
	fmt.Fprintf(&b, "Hello %s, your order has been cancelled.\n\n", clean(client.Name))
	if order.CancelReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n\n", clean(order.CancelReason))
	}
	return c.message(to, fmt.Sprintf("Order %s cancelled", order.OrderNumber), b.String())
}

func (c emailComposer) invoiceIssued(to []string, invoice domain.Invoice) (Message, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Invoice %s\n\n", clean(invoice.InvoiceNumber))
	fmt.Fprintf(&b, "Hello %s, please find your invoice attached.\n\n", clean(invoice.Client.Name))

	names := make([]string, len(invoice.Items))
	quantities := make([]int, len(invoice.Items))
	units := make([]string, len(invoice.Items))
	prices := make([]decimal.Decimal, len(invoice.Items))
	totals := make([]decimal.Decimal, len(invoice.Items))
	for i, item := range invoice.Items {
		names[i], quantities[i], units[i], prices[i], totals[i] = item.Name, item.Quantity, item.Unit, item.UnitPrice, item.LineTotal
	}
	c.itemsTable(&b, names, quantities, units, prices, totals)

	fmt.Fprintf(&b, "- Total: **%s**\n", c.money(invoice.TotalAmount))
	fmt.Fprintf(&b, "- Due date: %s\n", invoice.DueDate.Format("2006-01-02"))
	return c.message(to, fmt.Sprintf("Invoice %s", invoice.InvoiceNumber), b.String())
}

func (c emailComposer) paymentRecorded(to []string, invoice domain.Invoice, payment domain.Payment) (Message, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Payment received for invoice %s\n\n", clean(invoice.InvoiceNumber))
	fmt.Fprintf(&b, "We received %s", c.money(payment.Amount))
	if payment.Method != "" {
		fmt.Fprintf(&b, " by %s", strings.ReplaceAll(string(payment.Method), "_", " "))
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "- Paid to date: %s\n", c.money(invoice.PaidAmount))
	fmt.Fprintf(&b, "- Balance: %s\n", c.money(invoice.Balance()))
	return c.message(to, fmt.Sprintf("Payment received for invoice %s", invoice.InvoiceNumber), b.String())
}
