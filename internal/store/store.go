package store

import (
	"context"
	"errors"

	"posengine/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate key")
	ErrInvalid     = errors.New("invalid record")
	ErrUnavailable = errors.New("store unavailable")
)

type ProductStore interface {
	ListActiveProducts(ctx context.Context, businessID string) ([]domain.ProductSnapshot, error)
	// GetStockLevels returns current stock for ids; unknown ids map to 0.
	GetStockLevels(ctx context.Context, businessID string, productIDs []string) (map[string]int, error)
	SetStock(ctx context.Context, businessID string, productID string, qty int) error
}

// StockDecrementer is implemented by stores that can clamp-decrement stock
// in a single statement. It returns the stock left after the write.
type StockDecrementer interface {
	DecrementStock(ctx context.Context, businessID string, productID string, qty int) (int, error)
}

type SaleStore interface {
	// InsertSale assigns the id and creation time of the header.
	InsertSale(ctx context.Context, header domain.Sale) (domain.Sale, error)
	InsertSaleItems(ctx context.Context, items []domain.SaleItem) error
	// ListSales returns sales with items in [From, ToExclusive) ordered by creation time.
	ListSales(ctx context.Context, query domain.SaleQuery) ([]domain.Sale, error)
	GetSale(ctx context.Context, businessID string, saleID string) (domain.Sale, error)
}

type ReceiptLinkStore interface {
	// InsertReceiptLink returns ErrDuplicate when the token already exists.
	InsertReceiptLink(ctx context.Context, link domain.ReceiptLink) error
	FindReceiptLink(ctx context.Context, token string) (domain.ReceiptLink, error)
}

type BusinessDirectory interface {
	GetBusiness(ctx context.Context, businessID string) (domain.Business, error)
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

type Repository interface {
	ProductStore
	SaleStore
	ReceiptLinkStore
	BusinessDirectory
	UserStore
}
