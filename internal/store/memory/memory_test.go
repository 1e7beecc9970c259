package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posengine/backend/internal/domain"
	"posengine/backend/internal/store"
	"posengine/backend/internal/store/seed"
)

func newSeeded(t *testing.T) *Store {
	t.Helper()
	s, err := NewSeeded()
	require.NoError(t, err)
	return s
}

func TestSeededCatalog(t *testing.T) {
	s := newSeeded(t)
	products, err := s.ListActiveProducts(context.Background(), seed.DemoBusinessID)
	require.NoError(t, err)
	assert.NotEmpty(t, products)
	for _, p := range products {
		assert.Equal(t, seed.DefaultStock, p.Stock)
	}

	biz, err := s.GetBusiness(context.Background(), seed.DemoBusinessID)
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", biz.Timezone)

	_, err = s.GetBusiness(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDecrementStockClampsAtZero(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	products, err := s.ListActiveProducts(ctx, seed.DemoBusinessID)
	require.NoError(t, err)
	id := products[0].ID

	left, err := s.DecrementStock(ctx, seed.DemoBusinessID, id, seed.DefaultStock+5)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	levels, err := s.GetStockLevels(ctx, seed.DemoBusinessID, []string{id, "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 0, levels[id])
	assert.Equal(t, 0, levels["ghost"])

	assert.ErrorIs(t, s.SetStock(ctx, seed.DemoBusinessID, id, -1), store.ErrInvalid)
}

func TestSalesScopedAndOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	late, err := s.InsertSale(ctx, domain.Sale{BusinessID: "b1", CreatedAt: base.Add(2 * time.Hour), PaymentMethod: domain.PaymentCard, TotalCents: 200})
	require.NoError(t, err)
	early, err := s.InsertSale(ctx, domain.Sale{BusinessID: "b1", CreatedAt: base, PaymentMethod: domain.PaymentCash, TotalCents: 100})
	require.NoError(t, err)
	_, err = s.InsertSale(ctx, domain.Sale{BusinessID: "b2", CreatedAt: base, PaymentMethod: domain.PaymentCash, TotalCents: 999})
	require.NoError(t, err)
	require.NoError(t, s.InsertSaleItems(ctx, []domain.SaleItem{{SaleID: early.ID, ProductID: "p1", Name: "x", Quantity: 1, UnitPriceCents: 100, LineTotalCents: 100}}))

	sales, err := s.ListSales(ctx, domain.SaleQuery{BusinessID: "b1", From: base, ToExclusive: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, early.ID, sales[0].ID)
	assert.Len(t, sales[0].Items, 1)
	assert.Equal(t, late.ID, sales[1].ID)

	cards, err := s.ListSales(ctx, domain.SaleQuery{BusinessID: "b1", PaymentMethod: domain.PaymentCard})
	require.NoError(t, err)
	require.Len(t, cards, 1)

	_, err = s.GetSale(ctx, "b2", early.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.InsertSaleItems(ctx, []domain.SaleItem{{SaleID: "missing"}}), store.ErrNotFound)
}

func TestReceiptLinkDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	link := domain.ReceiptLink{Token: "abc", SaleID: "s1", BusinessID: "b1"}
	require.NoError(t, s.InsertReceiptLink(ctx, link))
	assert.ErrorIs(t, s.InsertReceiptLink(ctx, link), store.ErrDuplicate)

	found, err := s.FindReceiptLink(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "s1", found.SaleID)
	_, err = s.FindReceiptLink(ctx, "zzz")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
