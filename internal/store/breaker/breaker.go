// Package breaker fails calls to the remote store fast once it keeps erroring.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"posengine/backend/internal/domain"
	"posengine/backend/internal/store"
)

type Settings struct {
	Name        string
	MaxFailures uint32
	OpenFor     time.Duration
}

// Repository wraps a store.Repository with a circuit breaker. Not-found,
// duplicate and invalid-record errors count as successes.
type Repository struct {
	inner store.Repository
	cb    *gobreaker.CircuitBreaker[any]
}

var _ store.Repository = (*Repository)(nil)
var _ store.StockDecrementer = (*Repository)(nil)

func Wrap(inner store.Repository, settings Settings, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Name == "" {
		settings.Name = "remote-store"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenFor <= 0 {
		settings.OpenFor = 15 * time.Second
	}
	maxFailures := settings.MaxFailures

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, store.ErrNotFound) ||
				errors.Is(err, store.ErrDuplicate) ||
				errors.Is(err, store.ErrInvalid) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("store circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Repository{inner: inner, cb: cb}
}

func (r *Repository) State() gobreaker.State {
	return r.cb.State()
}

func call[T any](r *Repository, fn func() (T, error)) (T, error) {
	out, err := r.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	value, _ := out.(T)
	return value, err
}

func exec(r *Repository, fn func() error) error {
	_, err := call(r, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (r *Repository) ListActiveProducts(ctx context.Context, businessID string) ([]domain.ProductSnapshot, error) {
	return call(r, func() ([]domain.ProductSnapshot, error) {
		return r.inner.ListActiveProducts(ctx, businessID)
	})
}

func (r *Repository) GetStockLevels(ctx context.Context, businessID string, productIDs []string) (map[string]int, error) {
	return call(r, func() (map[string]int, error) {
		return r.inner.GetStockLevels(ctx, businessID, productIDs)
	})
}

func (r *Repository) SetStock(ctx context.Context, businessID string, productID string, qty int) error {
	return exec(r, func() error {
		return r.inner.SetStock(ctx, businessID, productID, qty)
	})
}

// DecrementStock returns errors.ErrUnsupported when the wrapped store has
// no atomic decrement.
func (r *Repository) DecrementStock(ctx context.Context, businessID string, productID string, qty int) (int, error) {
	dec, ok := r.inner.(store.StockDecrementer)
	if !ok {
		return 0, errors.ErrUnsupported
	}
	return call(r, func() (int, error) {
		return dec.DecrementStock(ctx, businessID, productID, qty)
	})
}

func (r *Repository) InsertSale(ctx context.Context, header domain.Sale) (domain.Sale, error) {
	return call(r, func() (domain.Sale, error) {
		return r.inner.InsertSale(ctx, header)
	})
}

func (r *Repository) InsertSaleItems(ctx context.Context, items []domain.SaleItem) error {
	return exec(r, func() error {
		return r.inner.InsertSaleItems(ctx, items)
	})
}

func (r *Repository) ListSales(ctx context.Context, query domain.SaleQuery) ([]domain.Sale, error) {
	return call(r, func() ([]domain.Sale, error) {
		return r.inner.ListSales(ctx, query)
	})
}

func (r *Repository) GetSale(ctx context.Context, businessID string, saleID string) (domain.Sale, error) {
	return call(r, func() (domain.Sale, error) {
		return r.inner.GetSale(ctx, businessID, saleID)
	})
}

func (r *Repository) InsertReceiptLink(ctx context.Context, link domain.ReceiptLink) error {
	return exec(r, func() error {
		return r.inner.InsertReceiptLink(ctx, link)
	})
}

func (r *Repository) FindReceiptLink(ctx context.Context, token string) (domain.ReceiptLink, error) {
	return call(r, func() (domain.ReceiptLink, error) {
		return r.inner.FindReceiptLink(ctx, token)
	})
}

func (r *Repository) GetBusiness(ctx context.Context, businessID string) (domain.Business, error) {
	return call(r, func() (domain.Business, error) {
		return r.inner.GetBusiness(ctx, businessID)
	})
}

func (r *Repository) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return call(r, func() ([]domain.UserAccount, error) {
		return r.inner.ListUsers(ctx)
	})
}
