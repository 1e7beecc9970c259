package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"posengine/backend/internal/domain"
	"posengine/backend/internal/store"
	"posengine/backend/internal/store/seed"
)

type Store struct {
	mu         sync.RWMutex
	businesses map[string]domain.Business
	products   map[string]map[string]domain.ProductSnapshot
	sales      []domain.Sale
	saleIndex  map[string]int
	items      map[string][]domain.SaleItem
	links      map[string]domain.ReceiptLink
	users      map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		businesses: make(map[string]domain.Business),
		products:   make(map[string]map[string]domain.ProductSnapshot),
		saleIndex:  make(map[string]int),
		items:      make(map[string][]domain.SaleItem),
		links:      make(map[string]domain.ReceiptLink),
		users:      make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store holding the demo tenant.
func NewSeeded() (*Store, error) {
	data, err := seed.Demo(0)
	if err != nil {
		return nil, err
	}
	s := New()
	s.Load(data)
	return s, nil
}

// Load upserts seed data.
func (s *Store) Load(data seed.Data) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range data.Businesses {
		s.businesses[b.ID] = b
	}
	for _, p := range data.Products {
		if s.products[p.BusinessID] == nil {
			s.products[p.BusinessID] = make(map[string]domain.ProductSnapshot)
		}
		s.products[p.BusinessID][p.ID] = p
	}
	for _, u := range data.Users {
		s.users[strings.ToLower(u.Username)] = u
	}
}

func (s *Store) ListActiveProducts(_ context.Context, businessID string) ([]domain.ProductSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProductSnapshot, 0, len(s.products[businessID]))
	for _, p := range s.products[businessID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetStockLevels(_ context.Context, businessID string, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make(map[string]int, len(productIDs))
	for _, id := range productIDs {
		levels[id] = s.products[businessID][id].Stock
	}
	return levels, nil
}

func (s *Store) SetStock(_ context.Context, businessID string, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[businessID][productID]
	if !ok {
		return store.ErrNotFound
	}
	p.Stock = qty
	s.products[businessID][productID] = p
	return nil
}

func (s *Store) DecrementStock(_ context.Context, businessID string, productID string, qty int) (int, error) {
	if productID == "" || qty < 0 {
		return 0, store.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[businessID][productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	p.Stock = max(0, p.Stock-qty)
	s.products[businessID][productID] = p
	return p.Stock, nil
}

func (s *Store) InsertSale(_ context.Context, header domain.Sale) (domain.Sale, error) {
	if header.BusinessID == "" {
		return domain.Sale{}, store.ErrInvalid
	}
	if header.ID == "" {
		header.ID = uuid.NewString()
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Status == "" {
		header.Status = domain.SaleStatusPaid
	}
	header.Items = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.saleIndex[header.ID]; exists {
		return domain.Sale{}, store.ErrDuplicate
	}
	s.saleIndex[header.ID] = len(s.sales)
	s.sales = append(s.sales, header)
	return header, nil
}

func (s *Store) InsertSaleItems(_ context.Context, items []domain.SaleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, ok := s.saleIndex[item.SaleID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, item := range items {
		s.items[item.SaleID] = append(s.items[item.SaleID], item)
	}
	return nil
}

func (s *Store) ListSales(_ context.Context, query domain.SaleQuery) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, 64)
	for _, sale := range s.sales {
		if sale.BusinessID != query.BusinessID {
			continue
		}
		if !query.From.IsZero() && sale.CreatedAt.Before(query.From) {
			continue
		}
		if !query.ToExclusive.IsZero() && !sale.CreatedAt.Before(query.ToExclusive) {
			continue
		}
		if query.PaymentMethod != "" && sale.PaymentMethod != query.PaymentMethod {
			continue
		}
		sale.Items = slices.Clone(s.items[sale.ID])
		out = append(out, sale)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetSale(_ context.Context, businessID string, saleID string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.saleIndex[saleID]
	if !ok || s.sales[idx].BusinessID != businessID {
		return domain.Sale{}, store.ErrNotFound
	}
	sale := s.sales[idx]
	sale.Items = slices.Clone(s.items[sale.ID])
	return sale, nil
}

func (s *Store) InsertReceiptLink(_ context.Context, link domain.ReceiptLink) error {
	if link.Token == "" || link.SaleID == "" {
		return store.ErrInvalid
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.Token]; exists {
		return store.ErrDuplicate
	}
	s.links[link.Token] = link
	return nil
}

func (s *Store) FindReceiptLink(_ context.Context, token string) (domain.ReceiptLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[token]
	if !ok {
		return domain.ReceiptLink{}, store.ErrNotFound
	}
	return link, nil
}

func (s *Store) GetBusiness(_ context.Context, businessID string) (domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return domain.Business{}, store.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}
