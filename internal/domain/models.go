package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SaleStatusPaid = "paid"
)

type ProductSnapshot struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	SKU        string `json:"sku,omitempty"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

type CartLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
}

func (l CartLine) LineTotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

type CartTotals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// PendingCheckout lives between checkout start and commit or cancel.
type PendingCheckout struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	Reference     string        `json:"reference,omitempty"`
	DiscountCents int64         `json:"discount_cents"`
}

type Sale struct {
	ID            string        `json:"id"`
	BusinessID    string        `json:"business_id"`
	CreatedBy     string        `json:"created_by"`
	CreatedByName string        `json:"created_by_name,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	SubtotalCents int64         `json:"subtotal_cents"`
	DiscountCents int64         `json:"discount_cents"`
	TaxCents      int64         `json:"tax_cents"`
	TotalCents    int64         `json:"total_cents"`
	Note          string        `json:"note,omitempty"`
	Status        string        `json:"status"`
	Items         []SaleItem    `json:"items"`
}

// Folio is the display-only fragment of the sale id shown on receipts.
func (s Sale) Folio() string {
	return ShortID(s.ID)
}

type SaleItem struct {
	SaleID         string `json:"sale_id"`
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type SaleQuery struct {
	BusinessID    string
	From          time.Time
	ToExclusive   time.Time
	PaymentMethod PaymentMethod
}

type CommitRequest struct {
	Identity      Identity
	Lines         []CartLine
	DiscountCents int64
	PaymentMethod PaymentMethod
	Reference     string
}

type StockAnomaly struct {
	ProductID   string `json:"product_id"`
	SoldQty     int    `json:"sold_qty"`
	Description string `json:"description"`
}

// CommitResult is only returned for sales that were recorded. Downstream
// failures are reported through ItemsPersisted and StockAnomalies.
type CommitResult struct {
	Sale           Sale           `json:"sale"`
	ItemsPersisted bool           `json:"items_persisted"`
	ItemsError     string         `json:"items_error,omitempty"`
	StockAnomalies []StockAnomaly `json:"stock_anomalies,omitempty"`
}

func (r CommitResult) Degraded() bool {
	return !r.ItemsPersisted || len(r.StockAnomalies) > 0
}

type ReceiptLink struct {
	Token      string    `json:"token"`
	SaleID     string    `json:"sale_id"`
	BusinessID string    `json:"business_id"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type Business struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Handle   string `json:"handle"`
	Category string `json:"category"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
	LogoURL  string `json:"logo_url,omitempty"`
}

type PublicBusiness struct {
	Name     string `json:"name"`
	Handle   string `json:"handle"`
	Category string `json:"category,omitempty"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
	LogoURL  string `json:"logo_url,omitempty"`
}

type ReceiptItem struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type ReceiptSale struct {
	Folio         string        `json:"folio"`
	CreatedAt     time.Time     `json:"created_at"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentLabel  string        `json:"payment_label"`
	Reference     string        `json:"reference,omitempty"`
	SubtotalCents int64         `json:"subtotal_cents"`
	DiscountCents int64         `json:"discount_cents"`
	TaxCents      int64         `json:"tax_cents"`
	TotalCents    int64         `json:"total_cents"`
	Items         []ReceiptItem `json:"items"`
}

type ReceiptView struct {
	Business PublicBusiness `json:"business"`
	Sale     ReceiptSale    `json:"sale"`
}

type IssuedReceipt struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type Identity struct {
	BusinessID  string `json:"business_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type UserAccount struct {
	Username    string    `json:"username"`
	Password    string    `json:"-"`
	UserID      string    `json:"user_id"`
	BusinessID  string    `json:"business_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	BusinessID  string `json:"business_id"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

type ReportRequest struct {
	From          string `json:"from"`
	To            string `json:"to"`
	PaymentMethod string `json:"payment_method"`
}

type DailyAggregate struct {
	Date       string `json:"date"`
	TotalCents int64  `json:"total_cents"`
}

type MethodAggregate struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	Label         string        `json:"label"`
	TotalCents    int64         `json:"total_cents"`
	Sales         int           `json:"sales"`
}

type ProductAggregate struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type EmployeeAggregate struct {
	Label            string          `json:"label"`
	Sales            int             `json:"sales"`
	TotalIncomeCents int64           `json:"total_income_cents"`
	TotalItems       int             `json:"total_items"`
	AvgTicketCents   decimal.Decimal `json:"avg_ticket_cents"`
}

type ReportKPIs struct {
	IncomeCents       int64           `json:"income_cents"`
	SaleCount         int             `json:"sale_count"`
	AvgTicketCents    decimal.Decimal `json:"avg_ticket_cents"`
	Projection30Cents decimal.Decimal `json:"projection_30_cents"`
}

type SalesReport struct {
	BusinessID    string              `json:"business_id"`
	Currency      string              `json:"currency"`
	Timezone      string              `json:"timezone"`
	From          string              `json:"from"`
	To            string              `json:"to"`
	PaymentMethod PaymentMethod       `json:"payment_method,omitempty"`
	KPIs          ReportKPIs          `json:"kpis"`
	Daily         []DailyAggregate    `json:"daily"`
	ByMethod      []MethodAggregate   `json:"by_method"`
	TopProducts   []ProductAggregate  `json:"top_products"`
	ByEmployee    []EmployeeAggregate `json:"by_employee"`
}

// ShortID returns the first segment of a uuid-like id, upper-cased.
func ShortID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if idx := strings.Index(id, "-"); idx > 0 {
		id = id[:idx]
	} else if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}
