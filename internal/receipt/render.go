package receipt

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"kasirpos/backend/internal/domain"
)

const lineWidth = 32

var (
	escposInit = []byte{0x1b, 0x40}
	escposCut  = []byte{0x1d, 0x56, 0x41, 0x10}
)

// Printout is a rendered receipt, as plain text and as ESC/POS bytes for a
// thermal printer.
type Printout struct {
	Text   string
	Escpos []byte
}

func Render(profile domain.StoreProfile, sale domain.Sale, loc *time.Location) Printout {
	if loc == nil {
		loc = time.UTC
	}
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = "POS Store"
	}

	rule := strings.Repeat("-", lineWidth)
	lines := []string{center(name)}
	if addr := strings.TrimSpace(profile.Address); addr != "" {
		lines = append(lines, center(addr))
	}
	lines = append(lines,
		strings.Repeat("=", lineWidth),
		"No   : "+sale.ReceiptNumber,
		"Date : "+sale.CreatedAt.In(loc).Format("2006-01-02 15:04"),
	)
	if sale.CashierName != nil && *sale.CashierName != "" {
		lines = append(lines, "Cash : "+*sale.CashierName)
	}
	if sale.Status == domain.SaleStatusCancelled {
		lines = append(lines, center("*** CANCELLED ***"))
	}
	lines = append(lines, rule)
	for _, item := range sale.Items {
		lines = append(lines, item.ProductName)
		lines = append(lines, columns(fmt.Sprintf("  %d x %s", item.Quantity, money(item.UnitPrice)), money(item.TotalPrice)))
	}
	lines = append(lines,
		rule,
		columns("Subtotal", money(sale.Subtotal)),
		columns("Discount", money(sale.Discount)),
		columns("TOTAL", money(sale.Total)),
		columns("Payment", strings.ToUpper(string(sale.PaymentMethod))),
	)
	if sale.Note != nil && strings.TrimSpace(*sale.Note) != "" {
		lines = append(lines, "Note: "+strings.TrimSpace(*sale.Note))
	}
	lines = append(lines, strings.Repeat("=", lineWidth))
	footer := strings.TrimSpace(profile.Footer)
	if footer == "" {
		footer = "Thank you"
	}
	lines = append(lines, center(footer), "")

	escpos := append([]byte{}, escposInit...)
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, escposCut...)

	return Printout{Text: strings.Join(lines, "\n"), Escpos: escpos}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func columns(left string, right string) string {
	pad := lineWidth - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

// center pads by rune count so multi-byte names line up on the printer.
func center(s string) string {
	n := utf8.RuneCountInString(s)
	if n >= lineWidth {
		return s
	}
	return strings.Repeat(" ", (lineWidth-n)/2) + s
}
