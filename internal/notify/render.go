package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/foodsafe/storefront/internal/order"
	"github.com/foodsafe/storefront/internal/pricing"
)

func money(o order.Order, amount pricing.Money) string {
	return pricing.FormatMoney(o.Summary.Currency, amount)
}

func renderConfirmation(o order.Order) (subject, htmlBody, text string) {
	subject = fmt.Sprintf("Order %s received", o.Reference)
	var t strings.Builder
	fmt.Fprintf(&t, "Hi %s,\n\nThanks for your order %s. We will send your items once payment clears.\n\n", o.Customer.FirstName, o.Reference)
	writeSummaryText(&t, o)

	var h strings.Builder
	fmt.Fprintf(&h, "<p>Hi %s,</p><p>Thanks for your order <strong>%s</strong>. We will send your items once payment clears.</p>",
		html.EscapeString(o.Customer.FirstName), html.EscapeString(o.Reference))
	writeSummaryHTML(&h, o)
	return subject, h.String(), t.String()
}

func renderSales(o order.Order) (subject, htmlBody, text string) {
	subject = fmt.Sprintf("New order %s: %s", o.Reference, money(o, o.Summary.Total))
	var t strings.Builder
	fmt.Fprintf(&t, "Customer: %s <%s>\n", o.Customer.FullName(), o.Customer.Email)
	if o.Customer.Company != "" {
		fmt.Fprintf(&t, "Company: %s\n", o.Customer.Company)
	}
	if o.Customer.Phone != "" {
		fmt.Fprintf(&t, "Phone: %s\n", o.Customer.Phone)
	}
	a := o.Customer.Address
	fmt.Fprintf(&t, "Ship to: %s, %s, %s %s, %s\n", a.Line1, a.City, a.Region, a.PostalCode, a.Country)
	if o.Customer.Notes != "" {
		fmt.Fprintf(&t, "Notes: %s\n", o.Customer.Notes)
	}
	t.WriteString("\n")
	writeSummaryText(&t, o)

	var h strings.Builder
	fmt.Fprintf(&h, "<p>Customer: %s &lt;%s&gt;</p>", html.EscapeString(o.Customer.FullName()), html.EscapeString(o.Customer.Email))
	fmt.Fprintf(&h, "<p>Ship to: %s, %s, %s</p>", html.EscapeString(a.Line1), html.EscapeString(a.City), html.EscapeString(a.Country))
	writeSummaryHTML(&h, o)
	return subject, h.String(), t.String()
}

func renderPaymentReceived(o order.Order) (subject, htmlBody, text string) {
	subject = fmt.Sprintf("Payment received for order %s", o.Reference)
	text = fmt.Sprintf("Hi %s,\n\nWe received your payment of %s for order %s.\n",
		o.Customer.FirstName, money(o, o.Summary.Total), o.Reference)
	htmlBody = fmt.Sprintf("<p>Hi %s,</p><p>We received your payment of <strong>%s</strong> for order %s.</p>",
		html.EscapeString(o.Customer.FirstName), money(o, o.Summary.Total), html.EscapeString(o.Reference))
	return subject, htmlBody, text
}

func renderCancelled(o order.Order) (subject, htmlBody, text string) {
	subject = fmt.Sprintf("Order %s cancelled", o.Reference)
	text = fmt.Sprintf("Hi %s,\n\nYour order %s was cancelled because the payment did not complete. You have not been charged.\n",
		o.Customer.FirstName, o.Reference)
	htmlBody = fmt.Sprintf("<p>Hi %s,</p><p>Your order %s was cancelled because the payment did not complete. You have not been charged.</p>",
		html.EscapeString(o.Customer.FirstName), html.EscapeString(o.Reference))
	return subject, htmlBody, text
}

func writeSummaryText(b *strings.Builder, o order.Order) {
	for _, l := range o.Summary.Lines {
		fmt.Fprintf(b, "%d x %s (%s)  %s\n", l.Quantity, l.ProductName, l.VariantName, money(o, l.LineTotal))
	}
	fmt.Fprintf(b, "\nSubtotal: %s\nShipping: %s\n", money(o, o.Summary.Subtotal), money(o, o.Summary.ShippingCost))
	if o.Summary.IsVatExempt {
		fmt.Fprintf(b, "VAT: %s (%s)\n", money(o, o.Summary.TaxAmount), o.Summary.ExemptionReason)
	} else {
		fmt.Fprintf(b, "VAT: %s\n", money(o, o.Summary.TaxAmount))
	}
	fmt.Fprintf(b, "Total: %s\n", money(o, o.Summary.Total))
}

func writeSummaryHTML(b *strings.Builder, o order.Order) {
	b.WriteString("<table>")
	for _, l := range o.Summary.Lines {
		fmt.Fprintf(b, "<tr><td>%d &times; %s (%s)</td><td>%s</td></tr>",
			l.Quantity, html.EscapeString(l.ProductName), html.EscapeString(l.VariantName), html.EscapeString(money(o, l.LineTotal)))
	}
	fmt.Fprintf(b, "<tr><td>Subtotal</td><td>%s</td></tr>", html.EscapeString(money(o, o.Summary.Subtotal)))
	fmt.Fprintf(b, "<tr><td>Shipping</td><td>%s</td></tr>", html.EscapeString(money(o, o.Summary.ShippingCost)))
	fmt.Fprintf(b, "<tr><td>VAT</td><td>%s</td></tr>", html.EscapeString(money(o, o.Summary.TaxAmount)))
	fmt.Fprintf(b, "<tr><td><strong>Total</strong></td><td><strong>%s</strong></td></tr>", html.EscapeString(money(o, o.Summary.Total)))
	b.WriteString("</table>")
}
