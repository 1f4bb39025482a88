package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/receipt"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

// Store keeps everything in maps behind one lock. Every sale mutation runs
// under the write lock, which gives the same all-or-nothing behaviour as a
// serializable transaction.
type Store struct {
	mu         sync.RWMutex
	categories map[string]domain.Category
	products   map[string]domain.Product
	sales      map[string]*domain.Sale
	saleOrder  []string
	counters   map[string]int
	now        func() time.Time
}

func New() *Store {
	return &Store{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		sales:      make(map[string]*domain.Sale),
		saleOrder:  make([]string, 0, 128),
		counters:   make(map[string]int),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store with a small cafe catalog for demo mode and tests.
func NewSeeded() *Store {
	s := New()
	now := s.now()

	categories := []string{"Coffee", "Tea", "Snack"}
	categoryIDs := make(map[string]string, len(categories))
	for _, name := range categories {
		id := xid.New()
		categoryIDs[name] = id
		s.categories[id] = domain.Category{ID: id, Name: name, CreatedAt: now}
	}

	seed := []struct {
		name     string
		category string
		barcode  string
		cost     string
		price    string
		stock    int
		alert    int
	}{
		{"Espresso", "Coffee", "8990001000011", "8.00", "20.00", 100, 10},
		{"Iced Latte", "Coffee", "8990001000028", "12.50", "28.00", 80, 10},
		{"Cappuccino", "Coffee", "8990001000035", "11.00", "26.00", 80, 10},
		{"Jasmine Tea", "Tea", "8990001000042", "4.00", "12.00", 60, 5},
		{"Thai Milk Tea", "Tea", "8990001000059", "7.25", "18.50", 60, 5},
		{"Butter Croissant", "Snack", "8990001000066", "9.00", "22.00", 24, 6},
		{"Choco Cookie", "Snack", "8990001000073", "3.10", "9.90", 40, 8},
		{"Banana Bread", "Snack", "", "6.00", "15.00", 4, 5},
	}
	for _, p := range seed {
		categoryID := categoryIDs[p.category]
		product := domain.Product{
			ID:            xid.New(),
			Name:          p.name,
			CostPrice:     decimal.RequireFromString(p.cost),
			SellingPrice:  decimal.RequireFromString(p.price),
			Stock:         p.stock,
			LowStockAlert: p.alert,
			CategoryID:    &categoryID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if p.barcode != "" {
			barcode := p.barcode
			product.Barcode = &barcode
		}
		s.products[product.ID] = product
	}

	return s
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	if category.ID == "" {
		category.ID = xid.New()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = s.now()
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) RenameCategory(_ context.Context, id string, name string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, store.NotFoundError("category", id)
	}
	for _, existing := range s.categories {
		if existing.ID != id && strings.EqualFold(existing.Name, name) {
			return nil, store.ErrConflict
		}
	}
	category.Name = name
	s.categories[id] = category
	renamed := category
	return &renamed, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.NotFoundError("category", id)
	}
	delete(s.categories, id)
	for pid, p := range s.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			p.CategoryID = nil
			s.products[pid] = p
		}
	}
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedProducts(func(domain.Product) bool { return true }), nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedProducts(domain.Product.IsLowStock), nil
}

func (s *Store) sortedProducts(keep func(domain.Product) bool) []domain.Product {
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			products = append(products, cloneProduct(p))
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.NotFoundError("product", id)
	}
	dup := cloneProduct(p)
	return &dup, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProductRefs(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New()
	}
	if product.Stock < 0 {
		product.Stock = 0
	}
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = cloneProduct(product)

	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.NotFoundError("product", product.ID)
	}
	if err := s.checkProductRefs(product); err != nil {
		return nil, err
	}
	// Stock only moves through the ledger primitives.
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()
	s.products[product.ID] = cloneProduct(product)

	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.NotFoundError("product", id)
	}
	for _, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.products, id)
	return nil
}

// checkProductRefs must run under the write lock.
func (s *Store) checkProductRefs(product domain.Product) error {
	if product.CategoryID != nil {
		if _, ok := s.categories[*product.CategoryID]; !ok {
			return store.Invalid("category_id", "does not exist")
		}
	}
	if product.Barcode != nil {
		for _, other := range s.products {
			if other.ID != product.ID && other.Barcode != nil && *other.Barcode == *product.Barcode {
				return store.ErrConflict
			}
		}
	}
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.NotFoundError("product", productID)
	}
	p.Stock = max(p.Stock+delta, 0)
	p.UpdatedAt = s.now()
	s.products[productID] = p

	dup := cloneProduct(p)
	return &dup, nil
}

func (s *Store) SetStock(_ context.Context, productID string, qty int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.NotFoundError("product", productID)
	}
	p.Stock = max(qty, 0)
	p.UpdatedAt = s.now()
	s.products[productID] = p

	dup := cloneProduct(p)
	return &dup, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, opts store.CreateSaleOptions) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.Invalid("items", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Work on a scratch copy of the touched products so a failure on any
	// item leaves the catalog untouched.
	staged := make(map[string]domain.Product, len(sale.Items))
	items := make([]domain.SaleItem, len(sale.Items))
	for i, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.Invalid("items.quantity", "must be greater than zero")
		}
		product, ok := staged[item.ProductID]
		if !ok {
			product, ok = s.products[item.ProductID]
			if !ok {
				return nil, store.NotFoundError("product", item.ProductID)
			}
		}
		deducted := item.Quantity
		if product.Stock < item.Quantity {
			if opts.Oversell == domain.OversellReject {
				return nil, store.ErrInsufficientStock
			}
			deducted = product.Stock
		}
		product.Stock -= deducted
		staged[item.ProductID] = product

		item.Shortfall = item.Quantity - deducted
		if item.ProductName == "" {
			item.ProductName = product.Name
		}
		items[i] = item
	}

	if sale.ID == "" {
		sale.ID = xid.New()
	}
	// Stamped under the lock so receipt order follows created_at order.
	calendar := opts.CalendarOrUTC()
	sale.CreatedAt = calendar.Now()
	day := calendar.DayOf(sale.CreatedAt)
	seq, ok := s.counters[day.Key]
	if !ok {
		seq = s.lastSeqOf(day.Key)
	}
	seq++

	sale.ReceiptNumber = receipt.Format(day.Key, seq)
	sale.Status = domain.SaleStatusCompleted
	sale.CancelledAt = nil
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = xid.New()
		}
		items[i].SaleID = sale.ID
	}
	sale.Items = items

	now := s.now()
	for id, p := range staged {
		p.UpdatedAt = now
		s.products[id] = p
	}
	s.counters[day.Key] = seq
	s.sales[sale.ID] = cloneSale(&sale)
	s.saleOrder = append(s.saleOrder, sale.ID)

	return cloneSale(&sale), nil
}

// lastSeqOf finds the highest sequence already issued on a day, for days
// whose counter was pruned or never created.
func (s *Store) lastSeqOf(dayKey string) int {
	last := 0
	for _, sale := range s.sales {
		key, seq, err := receipt.Parse(sale.ReceiptNumber)
		if err != nil || key != dayKey {
			continue
		}
		last = max(last, seq)
	}
	return last
}

func (s *Store) CancelSale(_ context.Context, id string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.NotFoundError("sale", id)
	}
	if sale.Status == domain.SaleStatusCancelled {
		return cloneSale(sale), nil
	}

	staged := make(map[string]domain.Product, len(sale.Items))
	for _, item := range sale.Items {
		product, ok := staged[item.ProductID]
		if !ok {
			product, ok = s.products[item.ProductID]
			if !ok {
				return nil, store.NotFoundError("product", item.ProductID)
			}
		}
		product.Stock += item.Deducted()
		staged[item.ProductID] = product
	}

	for pid, p := range staged {
		p.UpdatedAt = at
		s.products[pid] = p
	}
	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &at

	return cloneSale(sale), nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.NotFoundError("sale", id)
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.saleOrder))
	// Walk insertion order backwards so equal timestamps still come out
	// newest first.
	for i := len(s.saleOrder) - 1; i >= 0; i-- {
		sale := s.sales[s.saleOrder[i]]
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.CreatedAt.Before(filter.To) {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortStableFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sales, nil
}

func (s *Store) SalesSummary(_ context.Context, todayStart time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{TodayRevenue: decimal.Zero, TotalRevenue: decimal.Zero}
	for _, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		summary.TotalCount++
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.Total)
		if !sale.CreatedAt.Before(todayStart) {
			summary.TodayCount++
			summary.TodayRevenue = summary.TodayRevenue.Add(sale.Total)
		}
	}
	return summary, nil
}

func (s *Store) PruneReceiptCounters(_ context.Context, before string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for day := range s.counters {
		if day < before {
			delete(s.counters, day)
			pruned++
		}
	}
	return pruned, nil
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = make([]domain.SaleItem, len(src.Items))
	copy(dup.Items, src.Items)
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return &dup
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Barcode = cloneString(src.Barcode)
	dup.CategoryID = cloneString(src.CategoryID)
	dup.ImageURL = cloneString(src.ImageURL)
	return dup
}

func cloneString(src *string) *string {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}
