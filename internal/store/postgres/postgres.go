package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/receipt"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

const maxTxAttempts = 3

const productColumns = `id, name, barcode, cost_price, selling_price, stock, low_stock_alert, category_id, image_url, created_at, updated_at`

const saleColumns = `id, receipt_number, cashier_id, cashier_name, subtotal, discount, total, payment_method, status, note, created_at, cancelled_at`

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an already opened pool.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at)
		VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	created := category
	return &created, nil
}

func (s *Store) RenameCategory(ctx context.Context, id string, name string) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		UPDATE categories SET name = $2
		WHERE id = $1
		RETURNING id, name, created_at
	`, id, name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError("category", id)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("rename category: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.NotFoundError("category", id)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY name ASC`)
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE stock <= low_stock_alert ORDER BY stock ASC, name ASC`)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError("product", id)
	}
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, barcode, cost_price, selling_price, stock, low_stock_alert, category_id, image_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,GREATEST($6,0),$7,$8,$9,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Name, nullString(product.Barcode), product.CostPrice, product.SellingPrice,
		product.Stock, product.LowStockAlert, nullString(product.CategoryID), nullString(product.ImageURL))
	created, err := scanProduct(row)
	if err != nil {
		return nil, classifyProductWrite(err)
	}
	return created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, cost_price = $4, selling_price = $5,
			low_stock_alert = $6, category_id = $7, image_url = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, nullString(product.Barcode), product.CostPrice, product.SellingPrice,
		product.LowStockAlert, nullString(product.CategoryID), nullString(product.ImageURL))
	updated, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError("product", product.ID)
	}
	if err != nil {
		return nil, classifyProductWrite(err)
	}
	return updated, nil
}

// DeleteProduct refuses to remove a product that a completed sale still
// references.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products p
		WHERE p.id = $1
		  AND NOT EXISTS (
			SELECT 1
			FROM sale_items si
			JOIN sales sa ON sa.id = si.sale_id
			WHERE si.product_id = p.id AND sa.status = 'completed'
		  )
	`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if !exists {
		return store.NotFoundError("product", id)
	}
	return store.ErrConflict
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = GREATEST(stock + $2, 0), updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns, productID, delta)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError("product", productID)
	}
	return p, err
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = GREATEST($2, 0), updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns, productID, qty)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError("product", productID)
	}
	return p, err
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, opts store.CreateSaleOptions) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.Invalid("items", "must not be empty")
	}
	if sale.ID == "" {
		sale.ID = xid.New()
	}
	for i := range sale.Items {
		if sale.Items[i].Quantity < 1 {
			return nil, store.Invalid("items.quantity", "must be greater than zero")
		}
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = xid.New()
		}
	}

	var created *domain.Sale
	err := s.retry(ctx, "create sale", func() error {
		var err error
		created, err = s.createSaleTx(ctx, sale, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) createSaleTx(ctx context.Context, sale domain.Sale, opts store.CreateSaleOptions) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := uniqueProductIDs(sale.Items)
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	type lockedProduct struct {
		name  string
		stock int
	}
	locked := make(map[string]lockedProduct, len(productIDs))
	for rows.Next() {
		var id string
		var p lockedProduct
		if err := rows.Scan(&id, &p.name, &p.stock); err != nil {
			_ = rows.Close()
			return nil, err
		}
		locked[id] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	deductions := make(map[string]int, len(productIDs))
	items := make([]domain.SaleItem, len(sale.Items))
	for i, item := range sale.Items {
		p, ok := locked[item.ProductID]
		if !ok {
			return nil, store.NotFoundError("product", item.ProductID)
		}
		available := p.stock - deductions[item.ProductID]
		deducted := item.Quantity
		if available < item.Quantity {
			if opts.Oversell == domain.OversellReject {
				return nil, store.ErrInsufficientStock
			}
			deducted = available
		}
		deductions[item.ProductID] += deducted

		item.SaleID = sale.ID
		item.Shortfall = item.Quantity - deducted
		if item.ProductName == "" {
			item.ProductName = p.name
		}
		items[i] = item
	}

	// The snapshot was taken by the lock query above, so any sale that
	// commits a counter bump after this instant aborts this transaction with
	// a serialization failure and the retry stamps it again.
	var createdAt time.Time
	if err := pgTx.QueryRowContext(ctx, `SELECT clock_timestamp()`).Scan(&createdAt); err != nil {
		return nil, err
	}
	sale.CreatedAt = createdAt.UTC()
	day := opts.CalendarOrUTC().DayOf(sale.CreatedAt)

	var seq int
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO receipt_counters (day, last_seq)
		SELECT $1, COUNT(*) + 1
		FROM sales
		WHERE created_at >= $2 AND created_at < $3
		ON CONFLICT (day) DO UPDATE SET last_seq = receipt_counters.last_seq + 1
		RETURNING last_seq
	`, day.Key, day.Start, day.End).Scan(&seq)
	if err != nil {
		return nil, err
	}
	sale.ReceiptNumber = receipt.Format(day.Key, seq)
	sale.Status = domain.SaleStatusCompleted
	sale.CancelledAt = nil
	sale.Items = items

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, receipt_number, cashier_id, cashier_name, subtotal, discount, total,
			payment_method, status, note, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.ReceiptNumber, nullString(sale.CashierID), nullString(sale.CashierName),
		sale.Subtotal, sale.Discount, sale.Total, string(sale.PaymentMethod), string(sale.Status),
		nullString(sale.Note), sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, line_no, product_id, product_name, quantity, unit_price, total_price, shortfall)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, sale.ID, i+1, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice, item.Shortfall)
		if err != nil {
			return nil, err
		}
	}

	for _, id := range productIDs {
		qty := deductions[id]
		if qty == 0 {
			continue
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = GREATEST(stock - $1, 0), updated_at = now()
			WHERE id = $2
		`, qty, id)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) CancelSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error) {
	var cancelled *domain.Sale
	err := s.retry(ctx, "cancel sale", func() error {
		var err error
		cancelled, err = s.cancelSaleTx(ctx, id, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *Store) cancelSaleTx(ctx context.Context, id string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError("sale", id)
	}
	if err != nil {
		return nil, err
	}

	itemsBySale, err := loadItems(ctx, pgTx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = itemsBySale[sale.ID]

	if sale.Status == domain.SaleStatusCancelled {
		return sale, nil
	}

	restock := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		restock[item.ProductID] += item.Deducted()
	}
	for _, productID := range uniqueProductIDs(sale.Items) {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1, updated_at = now()
			WHERE id = $2
		`, restock[productID], productID)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, store.NotFoundError("product", productID)
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, cancelled_at = $3
		WHERE id = $1 AND status = $4
	`, sale.ID, string(domain.SaleStatusCancelled), at, string(domain.SaleStatusCompleted))
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	sale.Status = domain.SaleStatusCancelled
	cancelledAt := at.UTC()
	sale.CancelledAt = &cancelledAt
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError("sale", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	items, err := loadItems(ctx, s.db, []string{sale.ID})
	if err != nil {
		return nil, fmt.Errorf("get sale items: %w", err)
	}
	sale.Items = items[sale.ID]
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, receipt_number DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	sales := make([]domain.Sale, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, *sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list sales: %w", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return sales, nil
	}
	items, err := loadItems(ctx, s.db, ids)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []domain.SaleItem{}
		}
	}
	return sales, nil
}

func (s *Store) SalesSummary(ctx context.Context, todayStart time.Time) (domain.SalesSummary, error) {
	var summary domain.SalesSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total) FILTER (WHERE created_at >= $2), 0),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COALESCE(SUM(total), 0),
			COUNT(*)
		FROM sales
		WHERE status = $1
	`, string(domain.SaleStatusCompleted), todayStart).Scan(
		&summary.TodayRevenue,
		&summary.TodayCount,
		&summary.TotalRevenue,
		&summary.TotalCount,
	)
	if err != nil {
		return domain.SalesSummary{}, fmt.Errorf("sales summary: %w", err)
	}
	return summary, nil
}

func (s *Store) PruneReceiptCounters(ctx context.Context, before string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM receipt_counters WHERE day < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune receipt counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune receipt counters: %w", err)
	}
	return int(n), nil
}

// retry reruns fn when postgres aborts it for a serialization failure,
// deadlock or receipt number collision. Exhausting the attempts surfaces
// store.ErrConflict.
func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			if isDomainError(err) {
				return err
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
		s.logger.Warn("transaction aborted, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s after %d attempts: %w (%v)", op, maxTxAttempts, store.ErrConflict, lastErr)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var barcode, categoryID, imageURL sql.NullString
	err := row.Scan(
		&p.ID,
		&p.Name,
		&barcode,
		&p.CostPrice,
		&p.SellingPrice,
		&p.Stock,
		&p.LowStockAlert,
		&categoryID,
		&imageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Barcode = stringPtr(barcode)
	p.CategoryID = stringPtr(categoryID)
	p.ImageURL = stringPtr(imageURL)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var cashierID, cashierName, note sql.NullString
	var paymentMethod, status string
	var cancelledAt sql.NullTime
	err := row.Scan(
		&sale.ID,
		&sale.ReceiptNumber,
		&cashierID,
		&cashierName,
		&sale.Subtotal,
		&sale.Discount,
		&sale.Total,
		&paymentMethod,
		&status,
		&note,
		&sale.CreatedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	sale.CashierID = stringPtr(cashierID)
	sale.CashierName = stringPtr(cashierName)
	sale.Note = stringPtr(note)
	sale.PaymentMethod = domain.PaymentMethod(paymentMethod)
	sale.Status = domain.SaleStatus(status)
	sale.CreatedAt = sale.CreatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sale.CancelledAt = &at
	}
	return &sale, nil
}

func loadItems(ctx context.Context, q queryer, saleIDs []string) (map[string][]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price, total_price, shortfall
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string][]domain.SaleItem, len(saleIDs))
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.Shortfall); err != nil {
			return nil, err
		}
		items[item.SaleID] = append(items[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		set[item.ProductID] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func classifyProductWrite(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrConflict
		case "23503":
			return store.Invalid("category_id", "does not exist")
		case "23514":
			return store.Invalid(pgErr.ColumnName, "violates a check constraint")
		}
	}
	return fmt.Errorf("write product: %w", err)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	case "23505":
		return pgErr.ConstraintName == "sales_receipt_number_key" || pgErr.ConstraintName == "receipt_counters_pkey"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isDomainError(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrValidation) ||
		errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, store.ErrConflict)
}

func nullString(val *string) any {
	if val == nil || *val == "" {
		return nil
	}
	return *val
}

func stringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	v := val.String
	return &v
}
