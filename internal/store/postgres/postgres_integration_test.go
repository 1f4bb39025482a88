package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/receipt"
	"kasirpos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("KASIRPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASIRPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := Migrate(s.DB(), nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// cleanupProduct removes the product and every sale that touched it.
// Receipt counters are left alone since they may be shared with other data
// for the same day.
func cleanupProduct(t *testing.T, s *Store, productID string) {
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id IN (SELECT sale_id FROM sale_items WHERE product_id = $1)`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})
}

func integrationSale(productID string, qty int) domain.Sale {
	price := decimal.RequireFromString("12.00")
	total := price.Mul(decimal.NewFromInt(int64(qty)))
	return domain.Sale{
		Subtotal:      total,
		Discount:      decimal.Zero,
		Total:         total,
		PaymentMethod: domain.PaymentCash,
		Items: []domain.SaleItem{{
			ProductID:  productID,
			Quantity:   qty,
			UnitPrice:  price,
			TotalPrice: total,
		}},
	}
}

func mustParseReceipt(t *testing.T, number string) (string, int) {
	t.Helper()
	day, seq, err := receipt.Parse(number)
	if err != nil {
		t.Fatalf("parse receipt: %v", err)
	}
	return day, seq
}

func TestCancelSaleRestocksInventory(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	calendar := receipt.NewCalendar(time.UTC)

	product, err := s.CreateProduct(ctx, domain.Product{
		Name:         fmt.Sprintf("Produk IT %d", time.Now().UnixNano()),
		SellingPrice: decimal.RequireFromString("12.00"),
		Stock:        10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	cleanupProduct(t, s, product.ID)

	opts := store.CreateSaleOptions{Calendar: calendar, Oversell: domain.OversellClamp}
	sale, err := s.CreateSale(ctx, integrationSale(product.ID, 3), opts)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	day, seq := mustParseReceipt(t, sale.ReceiptNumber)
	if want := calendar.DayOf(sale.CreatedAt).Key; day != want {
		t.Fatalf("expected receipt day %s, got %s", want, day)
	}

	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", got.Stock)
	}

	if err := s.DeleteProduct(ctx, product.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting a sold product, got %v", err)
	}

	for i := 0; i < 2; i++ {
		cancelled, err := s.CancelSale(ctx, sale.ID, time.Now())
		if err != nil {
			t.Fatalf("cancel sale: %v", err)
		}
		if cancelled.Status != domain.SaleStatusCancelled {
			t.Fatalf("expected cancelled status, got %s", cancelled.Status)
		}
	}

	got, err = s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 10 {
		t.Fatalf("expected stock 10 after cancel, got %d", got.Stock)
	}

	next, err := s.CreateSale(ctx, integrationSale(product.ID, 1), opts)
	if err != nil {
		t.Fatalf("create second sale: %v", err)
	}
	nextDay, nextSeq := mustParseReceipt(t, next.ReceiptNumber)
	if nextDay == day && nextSeq <= seq {
		t.Fatalf("expected %s to follow %s", next.ReceiptNumber, sale.ReceiptNumber)
	}
	if !next.CreatedAt.After(sale.CreatedAt) {
		t.Fatalf("expected the later sale to carry the later timestamp")
	}
}

func TestConcurrentSalesKeepReceiptsUniqueAndStockConserved(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{
		Name:         fmt.Sprintf("Produk Race %d", time.Now().UnixNano()),
		SellingPrice: decimal.RequireFromString("12.00"),
		Stock:        100,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	cleanupProduct(t, s, product.ID)

	const workers = 8
	results := make([]*domain.Sale, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			sale, err := s.CreateSale(ctx, integrationSale(product.ID, 2), store.CreateSaleOptions{})
			if errors.Is(err, store.ErrConflict) {
				return nil
			}
			results[i] = sale
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent create: %v", err)
	}

	committed := make([]*domain.Sale, 0, workers)
	seen := make(map[string]bool, workers)
	for _, sale := range results {
		if sale == nil {
			continue
		}
		if seen[sale.ReceiptNumber] {
			t.Fatalf("duplicate receipt number %s", sale.ReceiptNumber)
		}
		seen[sale.ReceiptNumber] = true
		committed = append(committed, sale)
	}
	succeeded := len(committed)
	slices.SortFunc(committed, func(a, b *domain.Sale) int { return a.CreatedAt.Compare(b.CreatedAt) })
	for i := 1; i < len(committed); i++ {
		prevDay, prevSeq := mustParseReceipt(t, committed[i-1].ReceiptNumber)
		day, seq := mustParseReceipt(t, committed[i].ReceiptNumber)
		later := committed[i].CreatedAt.After(committed[i-1].CreatedAt)
		if later && day == prevDay && seq <= prevSeq {
			t.Fatalf("%s was created after %s but numbered before it", committed[i].ReceiptNumber, committed[i-1].ReceiptNumber)
		}
	}
	if succeeded == 0 {
		t.Fatalf("expected at least one sale to commit")
	}

	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if want := 100 - 2*succeeded; got.Stock != want {
		t.Fatalf("expected stock %d after %d sales, got %d", want, succeeded, got.Stock)
	}
}
