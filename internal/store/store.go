package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/receipt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ValidationError names the input field that was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError wraps ErrNotFound with the kind and id that was missing.
func NotFoundError(kind string, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// SaleFilter bounds are half-open: From <= created_at < To. Zero values mean
// unbounded and an empty Status means every status.
type SaleFilter struct {
	From   time.Time
	To     time.Time
	Status domain.SaleStatus
}

// CreateSaleOptions carries what the store needs to number and stock a sale.
// The store stamps created_at itself once the sale holds its receipt lock,
// and Calendar maps that instant to the receipt day. A nil Calendar means UTC.
type CreateSaleOptions struct {
	Calendar *receipt.Calendar
	Oversell domain.OversellPolicy
}

func (o CreateSaleOptions) CalendarOrUTC() *receipt.Calendar {
	if o.Calendar == nil {
		return receipt.NewCalendar(time.UTC)
	}
	return o.Calendar
}

type Repository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	RenameCategory(ctx context.Context, id string, name string) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// AdjustStock applies a signed delta and SetStock an absolute value. Both
	// floor the result at zero in a single atomic update.
	AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error)
	SetStock(ctx context.Context, productID string, qty int) (*domain.Product, error)

	CreateSale(ctx context.Context, sale domain.Sale, opts CreateSaleOptions) (*domain.Sale, error)
	CancelSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)
	SalesSummary(ctx context.Context, todayStart time.Time) (domain.SalesSummary, error)

	PruneReceiptCounters(ctx context.Context, before string) (int, error)
}
