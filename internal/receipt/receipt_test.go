package receipt

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"kasirpos/backend/internal/domain"
)

func TestFormatPadsToFourDigits(t *testing.T) {
	if got := Format("20250102", 7); got != "RCP-20250102-0007" {
		t.Fatalf("unexpected receipt number %q", got)
	}
	if got := Format("20250102", 12345); got != "RCP-20250102-12345" {
		t.Fatalf("expected overflow to lengthen, got %q", got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	key, seq, err := Parse(Format("20250102", 42))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if key != "20250102" || seq != 42 {
		t.Fatalf("unexpected parse result %s %d", key, seq)
	}
	if _, _, err := Parse("INV-20250102-0001"); err == nil {
		t.Fatalf("expected foreign prefix to be rejected")
	}
}

func TestDayOfUsesStoreTimezone(t *testing.T) {
	cal, err := LoadCalendar("Asia/Jakarta")
	if err != nil {
		t.Fatalf("load calendar: %v", err)
	}
	// 18:30 UTC is already the next day in UTC+7.
	instant := time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC)
	day := cal.DayOf(instant)
	if day.Key != "20250310" {
		t.Fatalf("expected local day 20250310, got %s", day.Key)
	}
	if !day.Start.Equal(time.Date(2025, 3, 9, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day start %s", day.Start)
	}
	if day.End.Sub(day.Start) != 24*time.Hour {
		t.Fatalf("expected 24h day, got %s", day.End.Sub(day.Start))
	}
	if !day.Contains(instant) || day.Contains(day.End) {
		t.Fatalf("day bounds must be half-open")
	}
}

func TestParseDate(t *testing.T) {
	cal := NewCalendar(time.UTC)
	day, err := cal.ParseDate("2025-01-31")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if day.Key != "20250131" {
		t.Fatalf("unexpected key %s", day.Key)
	}
	if _, err := cal.ParseDate("31/01/2025"); err == nil {
		t.Fatalf("expected bad layout to fail")
	}
}

func TestTodayFollowsClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cal := NewCalendar(time.UTC).WithClock(func() time.Time { return fixed })
	if cal.Today().Key != "20250601" {
		t.Fatalf("unexpected today %s", cal.Today().Key)
	}
	if cal.DaysAgo(3) != "20250529" {
		t.Fatalf("unexpected days ago %s", cal.DaysAgo(3))
	}
}

func TestRenderIncludesProfileAndItems(t *testing.T) {
	cashier := "Sari"
	sale := domain.Sale{
		ReceiptNumber: "RCP-20250601-0001",
		CashierName:   &cashier,
		Subtotal:      decimal.RequireFromString("30.00"),
		Discount:      decimal.RequireFromString("5.00"),
		Total:         decimal.RequireFromString("25.00"),
		PaymentMethod: domain.PaymentCash,
		Status:        domain.SaleStatusCompleted,
		CreatedAt:     time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
		Items: []domain.SaleItem{{
			ProductName: "Iced Latte",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("15"),
			TotalPrice:  decimal.RequireFromString("30"),
		}},
	}
	out := Render(domain.StoreProfile{Name: "Corner Cafe", Address: "Jl. Merdeka 1", Footer: "See you"}, sale, time.UTC)

	for _, want := range []string{"Corner Cafe", "Jl. Merdeka 1", "RCP-20250601-0001", "Iced Latte", "2 x 15.00", "25.00", "See you", "CASH"} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("expected receipt text to contain %q:\n%s", want, out.Text)
		}
	}
	if !bytes.HasPrefix(out.Escpos, escposInit) || !bytes.HasSuffix(out.Escpos, escposCut) {
		t.Fatalf("expected ESC/POS init and cut commands")
	}
}

func TestRenderMarksCancelledSales(t *testing.T) {
	out := Render(domain.StoreProfile{}, domain.Sale{Status: domain.SaleStatusCancelled}, nil)
	if !strings.Contains(out.Text, "CANCELLED") {
		t.Fatalf("expected cancelled marker")
	}
	if !strings.Contains(out.Text, "POS Store") {
		t.Fatalf("expected default store name")
	}
}

func TestLayoutCountsRunesNotBytes(t *testing.T) {
	row := columns("Kopi Susu Gula Aren ☕", "15.00")
	if got := utf8.RuneCountInString(row); got != lineWidth {
		t.Fatalf("expected a %d column row, got %d: %q", lineWidth, got, row)
	}

	name := "Kafé Crème Brûlée"
	want := strings.Repeat(" ", (lineWidth-utf8.RuneCountInString(name))/2) + name
	if got := center(name); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	out := Render(domain.StoreProfile{Name: name}, domain.Sale{}, time.UTC)
	if first, _, _ := strings.Cut(out.Text, "\n"); first != want {
		t.Fatalf("expected centered header %q, got %q", want, first)
	}
}
