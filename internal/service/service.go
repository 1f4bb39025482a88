package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kasirpos/backend/internal/cache"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/receipt"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

const maxIdempotencyKeyLen = 128

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Calendar *receipt.Calendar
	Oversell domain.OversellPolicy
	Profile  domain.StoreProfile
	// Idempotency defaults to an in-process store. Pass
	// cache.NoopSaleIdempotency{} to turn replay protection off.
	Idempotency    cache.SaleIdempotency
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

type Service struct {
	repo     store.Repository
	calendar *receipt.Calendar
	oversell domain.OversellPolicy
	profile  domain.StoreProfile
	idem     cache.SaleIdempotency
	idemTTL  time.Duration
	logger   *zap.Logger
	validate *validator.Validate
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Calendar == nil {
		opts.Calendar = receipt.NewCalendar(time.UTC)
	}
	if opts.Oversell == "" {
		opts.Oversell = domain.OversellClamp
	}
	if opts.Idempotency == nil {
		opts.Idempotency = cache.NewMemorySaleIdempotency()
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}

	return &Service{
		repo:     repo,
		calendar: opts.Calendar,
		oversell: opts.Oversell,
		profile:  opts.Profile,
		idem:     opts.Idempotency,
		idemTTL:  opts.IdempotencyTTL,
		logger:   logger.OrNop(opts.Logger),
		validate: newValidator(),
	}
}

func (s *Service) Calendar() *receipt.Calendar {
	return s.calendar
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{ID: xid.New(), Name: req.Name, CreatedAt: s.calendar.Now()})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category.create", created.ID, zap.String("name", created.Name))
	return *created, nil
}

func (s *Service) RenameCategory(ctx context.Context, id string, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}

	renamed, err := s.repo.RenameCategory(ctx, strings.TrimSpace(id), req.Name)
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category.rename", renamed.ID, zap.String("name", renamed.Name))
	return *renamed, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category.delete", id)
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if req.CostPrice.IsNegative() {
		return domain.Product{}, store.Invalid("cost_price", "must not be negative")
	}
	if req.SellingPrice.IsNegative() {
		return domain.Product{}, store.Invalid("selling_price", "must not be negative")
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:            xid.New(),
		Name:          req.Name,
		Barcode:       trimmedOrNil(req.Barcode),
		CostPrice:     req.CostPrice.Round(2),
		SellingPrice:  req.SellingPrice.Round(2),
		Stock:         req.Stock,
		LowStockAlert: req.LowStockAlert,
		CategoryID:    trimmedOrNil(req.CategoryID),
		ImageURL:      trimmedOrNil(req.ImageURL),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product.create", created.ID,
		zap.String("name", created.Name),
		zap.String("price", created.SellingPrice.StringFixed(2)),
		zap.Int("stock", created.Stock),
	)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.Invalid("name", "must not be empty")
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = trimmedOrNil(req.Barcode)
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, store.Invalid("cost_price", "must not be negative")
		}
		updated.CostPrice = req.CostPrice.Round(2)
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.IsNegative() {
			return domain.Product{}, store.Invalid("selling_price", "must not be negative")
		}
		updated.SellingPrice = req.SellingPrice.Round(2)
	}
	if req.LowStockAlert != nil {
		updated.LowStockAlert = *req.LowStockAlert
	}
	if req.CategoryID != nil {
		updated.CategoryID = trimmedOrNil(req.CategoryID)
	}
	if req.ImageURL != nil {
		updated.ImageURL = trimmedOrNil(req.ImageURL)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product.update", saved.ID, zap.String("name", saved.Name))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product.delete", id)
	return nil
}

// AdjustStock is the manual admin path. Every mode floors at zero.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	var (
		product *domain.Product
		err     error
	)
	switch req.Mode {
	case domain.StockIncrease:
		product, err = s.repo.AdjustStock(ctx, productID, req.Amount)
	case domain.StockDecrease:
		product, err = s.repo.AdjustStock(ctx, productID, -req.Amount)
	case domain.StockSet:
		product, err = s.repo.SetStock(ctx, productID, req.Amount)
	default:
		return domain.Product{}, store.Invalid("mode", "must be increase, decrease or set")
	}
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "stock.adjust", productID,
		zap.String("mode", string(req.Mode)),
		zap.Int("amount", req.Amount),
		zap.Int("stock", product.Stock),
	)
	return *product, nil
}

// CreateSale records a completed sale and takes its items out of stock. A
// non-empty idempotencyKey makes resubmission safe: the second call returns
// the sale from the first one and replayed is true.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest, idempotencyKey string) (sale domain.Sale, replayed bool, err error) {
	actor, _ := ActorFromContext(ctx)

	draft, err := s.buildSale(actor, req)
	if err != nil {
		return domain.Sale{}, false, err
	}

	key := strings.TrimSpace(idempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return domain.Sale{}, false, store.Invalid("Idempotency-Key", "is too long")
	}
	if key != "" {
		key = actor.Subject + ":" + key
		existingID, reserved, err := s.idem.Reserve(ctx, key, s.idemTTL)
		switch {
		case err != nil:
			s.logger.Warn("idempotency cache unavailable, creating sale without it", zap.Error(err))
			key = ""
		case !reserved && existingID == "":
			return domain.Sale{}, false, fmt.Errorf("a sale with this idempotency key is still being processed: %w", store.ErrConflict)
		case !reserved:
			existing, err := s.repo.GetSale(ctx, existingID)
			if err != nil {
				return domain.Sale{}, false, err
			}
			return *existing, true, nil
		}
	}

	created, err := s.repo.CreateSale(ctx, draft, store.CreateSaleOptions{
		Calendar: s.calendar,
		Oversell: s.oversell,
	})
	if err != nil {
		if key != "" {
			if releaseErr := s.idem.Release(ctx, key); releaseErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.Error(releaseErr))
			}
		}
		return domain.Sale{}, false, err
	}
	if key != "" {
		if err := s.idem.Complete(ctx, key, created.ID, s.idemTTL); err != nil {
			s.logger.Warn("failed to store idempotency key", zap.String("sale_id", created.ID), zap.Error(err))
		}
	}

	shortfall := 0
	for _, item := range created.Items {
		shortfall += item.Shortfall
	}
	s.logAudit(ctx, "sale.create", created.ID,
		zap.String("receipt", created.ReceiptNumber),
		zap.String("total", created.Total.StringFixed(2)),
		zap.String("payment", string(created.PaymentMethod)),
		zap.Int("items", len(created.Items)),
	)
	if shortfall > 0 {
		s.logger.Warn("sale oversold stock", zap.String("sale_id", created.ID), zap.Int("shortfall", shortfall))
	}
	return *created, false, nil
}

// buildSale validates the request and recomputes every amount from the line
// items. Client amounts that disagree by more than a cent are rejected.
func (s *Service) buildSale(actor domain.Actor, req domain.SaleCreateRequest) (domain.Sale, error) {
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}
	if !req.PaymentMethod.Valid() {
		return domain.Sale{}, store.Invalid("payment_method", "must be cash or transfer")
	}

	subtotal := decimal.Zero
	items := make([]domain.SaleItem, 0, len(req.Items))
	for i, in := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		productID := strings.TrimSpace(in.ProductID)
		if productID == "" {
			return domain.Sale{}, store.Invalid(field+".product_id", "is required")
		}
		if in.Quantity < 1 {
			return domain.Sale{}, store.Invalid(field+".quantity", "must be greater than zero")
		}
		if in.UnitPrice.IsNegative() {
			return domain.Sale{}, store.Invalid(field+".unit_price", "must not be negative")
		}
		unitPrice := in.UnitPrice.Round(2)
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2)
		if !sameAmount(in.TotalPrice, lineTotal) {
			return domain.Sale{}, store.Invalid(field+".total_price", "must equal quantity x unit_price")
		}
		subtotal = subtotal.Add(lineTotal)
		items = append(items, domain.SaleItem{
			ID:          xid.New(),
			ProductID:   productID,
			ProductName: strings.TrimSpace(in.ProductName),
			Quantity:    in.Quantity,
			UnitPrice:   unitPrice,
			TotalPrice:  lineTotal,
		})
	}

	if !sameAmount(req.Subtotal, subtotal) {
		return domain.Sale{}, store.Invalid("subtotal", "must equal the sum of item totals")
	}
	discount := req.Discount.Round(2)
	if discount.IsNegative() {
		return domain.Sale{}, store.Invalid("discount", "must not be negative")
	}
	if discount.GreaterThan(subtotal) {
		return domain.Sale{}, store.Invalid("discount", "must not exceed subtotal")
	}
	total := subtotal.Sub(discount)
	if !sameAmount(req.Total, total) {
		return domain.Sale{}, store.Invalid("total", "must equal subtotal minus discount")
	}

	sale := domain.Sale{
		ID:            xid.New(),
		CashierID:     trimmedOrNil(req.CashierID),
		CashierName:   trimmedOrNil(req.CashierName),
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         total,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.SaleStatusCompleted,
		Note:          trimmedOrNil(req.Note),
		Items:         items,
	}
	if sale.CashierID == nil && actor.Subject != "" {
		subject := actor.Subject
		sale.CashierID = &subject
	}
	if sale.CashierName == nil && actor.Name != "" {
		name := actor.Name
		sale.CashierName = &name
	}
	return sale, nil
}

// CancelSale puts the sale's stock back and marks it cancelled. Cancelling
// an already cancelled sale returns it unchanged.
func (s *Service) CancelSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if !xid.Valid(id) {
		return domain.Sale{}, store.NotFoundError("sale", id)
	}

	sale, err := s.repo.CancelSale(ctx, id, s.calendar.Now())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale.cancel", sale.ID,
		zap.String("receipt", sale.ReceiptNumber),
		zap.String("total", sale.Total.StringFixed(2)),
	)
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if !xid.Valid(id) {
		return domain.Sale{}, store.NotFoundError("sale", id)
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// ListSales filters by store-local dates. Both ends are inclusive days.
func (s *Service) ListSales(ctx context.Context, req domain.SaleListRequest) ([]domain.Sale, error) {
	req.From = strings.TrimSpace(req.From)
	req.To = strings.TrimSpace(req.To)
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.check(req); err != nil {
		return nil, err
	}

	var filter store.SaleFilter
	if req.From != "" {
		day, err := s.calendar.ParseDate(req.From)
		if err != nil {
			return nil, store.Invalid("from", err.Error())
		}
		filter.From = day.Start
	}
	if req.To != "" {
		day, err := s.calendar.ParseDate(req.To)
		if err != nil {
			return nil, store.Invalid("to", err.Error())
		}
		filter.To = day.End
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, store.Invalid("from", "must not be after to")
	}
	if req.Status != "" && req.Status != "all" {
		filter.Status = domain.SaleStatus(req.Status)
	}

	return s.repo.ListSales(ctx, filter)
}

func (s *Service) Summary(ctx context.Context) (domain.SalesSummary, error) {
	return s.repo.SalesSummary(ctx, s.calendar.Today().Start)
}

func (s *Service) Receipt(ctx context.Context, id string) (domain.ReceiptResponse, error) {
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	out := receipt.Render(s.profile, sale, s.calendar.Location())
	return domain.ReceiptResponse{
		SaleID:        sale.ID,
		ReceiptNumber: sale.ReceiptNumber,
		PreviewText:   out.Text,
		EscposBase64:  base64.StdEncoding.EncodeToString(out.Escpos),
		FileName:      fmt.Sprintf("receipt-%s.bin", sale.ReceiptNumber),
	}, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityID string, fields ...zap.Field) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Subject: "system", Role: "system"}
	}
	s.logger.Info("audit",
		append([]zap.Field{
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.String("actor", actor.Subject),
			zap.String("role", string(actor.Role)),
		}, fields...)...,
	)
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

var cent = decimal.New(1, -2)

func sameAmount(got decimal.Decimal, want decimal.Decimal) bool {
	return got.Sub(want).Abs().LessThanOrEqual(cent)
}

func trimmedOrNil(val *string) *string {
	if val == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
