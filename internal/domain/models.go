package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money travels as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentTransfer
}

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

func (s SaleStatus) Valid() bool {
	return s == SaleStatusCompleted || s == SaleStatusCancelled
}

// OversellPolicy decides what a sale does when an item asks for more than
// the product has on hand.
type OversellPolicy string

const (
	OversellClamp  OversellPolicy = "clamp"
	OversellReject OversellPolicy = "reject"
)

func ParseOversellPolicy(raw string) (OversellPolicy, bool) {
	switch OversellPolicy(raw) {
	case OversellClamp:
		return OversellClamp, true
	case OversellReject:
		return OversellReject, true
	}
	return "", false
}

type StockMode string

const (
	StockIncrease StockMode = "increase"
	StockDecrease StockMode = "decrease"
	StockSet      StockMode = "set"
)

type Actor struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Barcode       *string         `json:"barcode,omitempty"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Stock         int             `json:"stock"`
	LowStockAlert int             `json:"low_stock_alert"`
	CategoryID    *string         `json:"category_id,omitempty"`
	ImageURL      *string         `json:"image_url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p Product) IsLowStock() bool {
	return p.Stock <= p.LowStockAlert
}

type Sale struct {
	ID            string          `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	CashierID     *string         `json:"cashier_id,omitempty"`
	CashierName   *string         `json:"cashier_name,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        SaleStatus      `json:"status"`
	Note          *string         `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	Items         []SaleItem      `json:"items"`
}

// SaleItem is a line of a sale. Name and price are snapshots taken at sale
// time. Shortfall counts the units that were sold but could not be taken
// from stock because it hit zero.
type SaleItem struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"sale_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Shortfall   int             `json:"shortfall,omitempty"`
}

// Deducted is the number of units actually taken from stock.
func (i SaleItem) Deducted() int {
	return i.Quantity - i.Shortfall
}

type SalesSummary struct {
	TodayRevenue decimal.Decimal `json:"todayRevenue"`
	TodayCount   int             `json:"todayCount"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	TotalCount   int             `json:"totalCount"`
}

// StoreProfile is printed on every receipt.
type StoreProfile struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Footer  string `json:"footer"`
}

type SaleItemRequest struct {
	ProductID   string          `json:"product_id" validate:"required"`
	ProductName string          `json:"product_name" validate:"max=200"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type SaleCreateRequest struct {
	CashierID     *string           `json:"cashier_id,omitempty"`
	CashierName   *string           `json:"cashier_name,omitempty"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Discount      decimal.Decimal   `json:"discount"`
	Total         decimal.Decimal   `json:"total"`
	PaymentMethod PaymentMethod     `json:"payment_method" validate:"required,oneof=cash transfer"`
	Note          *string           `json:"note,omitempty" validate:"omitempty,max=500"`
	Items         []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
}

type SaleListRequest struct {
	From   string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Status string `json:"status" validate:"omitempty,oneof=completed cancelled all"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Barcode       *string         `json:"barcode,omitempty" validate:"omitempty,max=64"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Stock         int             `json:"stock" validate:"gte=0"`
	LowStockAlert int             `json:"low_stock_alert" validate:"gte=0"`
	CategoryID    *string         `json:"category_id,omitempty"`
	ImageURL      *string         `json:"image_url,omitempty" validate:"omitempty,url"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Barcode       *string          `json:"barcode,omitempty" validate:"omitempty,max=64"`
	CostPrice     *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice  *decimal.Decimal `json:"selling_price,omitempty"`
	LowStockAlert *int             `json:"low_stock_alert,omitempty" validate:"omitempty,gte=0"`
	CategoryID    *string          `json:"category_id,omitempty"`
	ImageURL      *string          `json:"image_url,omitempty" validate:"omitempty,url"`
}

type StockAdjustRequest struct {
	Mode   StockMode `json:"mode" validate:"required,oneof=increase decrease set"`
	Amount int       `json:"amount" validate:"gte=0"`
}

type CategoryCreateRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type ReceiptResponse struct {
	SaleID        string `json:"sale_id"`
	ReceiptNumber string `json:"receipt_number"`
	PreviewText   string `json:"preview_text"`
	EscposBase64  string `json:"escpos_base64"`
	FileName      string `json:"file_name"`
}
