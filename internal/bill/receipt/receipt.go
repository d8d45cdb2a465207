// Package receipt renders printable bills.
package receipt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	marotoconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	billdomain "github.com/smallbiznis/aurum/internal/bill/domain"
	"github.com/smallbiznis/aurum/internal/config"
	"github.com/smallbiznis/aurum/internal/money"
)

const dateLayout = "02 Jan 2006 15:04"

type Provider interface {
	Render(ctx context.Context, bill *billdomain.Bill, store config.StoreConfig) ([]byte, error)
}

type PDFProvider struct {
	location *time.Location
}

// New returns a PDF renderer printing dates in the server's local zone.
func New() Provider {
	return &PDFProvider{location: time.Local}
}

func (p *PDFProvider) Render(ctx context.Context, bill *billdomain.Bill, store config.StoreConfig) ([]byte, error) {
	if bill == nil {
		return nil, fmt.Errorf("receipt: nil bill")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// the built-in fonts are latin-1 only, so amounts carry the ISO code
	amount := func(v float64) string { return money.FormatCode(v, store.Currency) }

	cfg := marotoconfig.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, store.Name, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, "Tax Invoice", props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(14,
		col.New(8).Add(
			text.New(store.Address, props.Text{Size: 9}),
			text.New(joinNonEmpty(" | ", prefixed("Ph: ", store.Phone), prefixed("GSTIN: ", store.GSTIN)), props.Text{Size: 9, Top: 5}),
		),
		col.New(4),
	)

	customer := bill.Customer.Data()
	m.AddRow(24,
		col.New(6).Add(
			text.New("Bill number: "+bill.BillNumber, props.Text{Size: 9}),
			text.New("Date: "+bill.CreatedAt.In(p.location).Format(dateLayout), props.Text{Size: 9, Top: 5}),
			text.New("Payment mode: "+paymentModeLabel(bill.PaymentMode), props.Text{Size: 9, Top: 10}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Size: 9, Style: fontstyle.Bold}),
			text.New(customer.Name, props.Text{Size: 9, Top: 5}),
			text.New(customer.Phone, props.Text{Size: 9, Top: 10}),
			text.New(customer.Address, props.Text{Size: 9, Top: 15}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Item", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range bill.Items {
		m.AddRow(12,
			col.New(6).Add(
				text.New(item.Name, props.Text{Size: 9}),
				text.New(composition(item.ProductSnapshot), props.Text{Size: 7, Top: 4}),
			),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, amount(item.UnitPrice), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, amount(item.LineTotal), props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := []struct {
		label string
		value float64
	}{
		{"Subtotal", bill.Subtotal},
		{"Discount", bill.Discount},
		{"Total",    bill.FinalAmount},
		{"Paid",     bill.AmountPaid},
		{"Balance    due", bill.Unpaid()},
	}
	for _, row := range totals {
		style := props.Text{Size: 9}
		if row.label == "Total" {
			style.Style = fontstyle.Bold
		}
		valueStyle := style
		valueStyle.Align = align.Right
		m.AddRow(7,
			col.New(7),
			text.NewCol(2, row.label, style),
			text.NewCol(3, amount(row.value), valueStyle),
		)
	}

	if notes := strings.TrimSpace(bill.Notes); notes != "" {
		m.AddRow(14, text.NewCol(12, "Notes: "+notes, props.Text{Size: 8, Top: 4}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// composition lists weights, e.g. "22K 10.000 g, VVS1 0.50 ct x2".
func composition(p billdomain.ProductSnapshot) string {
	parts := make([]string, 0, len(p.Metals)+len(p.Gemstones))
	for _, m := range p.Metals {
		parts = append(parts, fmt.Sprintf("%s %.3f g", m.VariantName, m.WeightInGrams))
	}
	for _, g := range p.Gemstones {
		part := fmt.Sprintf("%s %.2f ct", g.VariantName, g.WeightInCarats)
		if g.Quantity > 1 {
			part += fmt.Sprintf(" x%d", g.Quantity)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func paymentModeLabel(mode billdomain.PaymentMode) string {
	switch mode {
	case billdomain.PaymentUPI:
		return "UPI"
	case billdomain.PaymentBankTransfer:
		return "Bank transfer"
	default:
		s := string(mode)
		if s == "" {
			return ""
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

func prefixed(prefix, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return prefix + value
}

func joinNonEmpty(sep string, values ...string) string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
