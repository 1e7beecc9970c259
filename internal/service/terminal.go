package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"posengine/backend/internal/cart"
	"posengine/backend/internal/checkout"
	"posengine/backend/internal/domain"
	"posengine/backend/internal/xid"
)

// Terminal is one register's checkout session: a cart, its state machine
// and the product catalog used to price and cap new lines.
type Terminal struct {
	id        string
	sessionID string
	identity  domain.Identity
	svc       *Service
	machine   *checkout.Machine
	// lastUsed is guarded by Service.terminalsMu.
	lastUsed time.Time

	catalogMu sync.Mutex
	catalog   []domain.ProductSnapshot
	byID      map[string]domain.ProductSnapshot
}

type TerminalView struct {
	TerminalID string            `json:"terminal_id"`
	SessionID  string            `json:"session_id"`
	Lines      []domain.CartLine `json:"lines"`
	Totals     domain.CartTotals `json:"totals"`
	Checkout   checkout.Snapshot `json:"checkout"`
}

// Terminal returns the session for the caller and terminalID, creating it
// on first use. Sessions are scoped by business and user; idle ones are
// dropped and each user may hold at most MaxTerminalsPerUser.
func (s *Service) Terminal(ctx context.Context, terminalID string) (*Terminal, error) {
	identity, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if terminalID == "" {
		terminalID = "default"
	}
	owner := identity.BusinessID + "|" + identity.UserID + "|"
	key := owner + terminalID
	now := s.now()

	s.terminalsMu.Lock()
	defer s.terminalsMu.Unlock()
	if t, ok := s.terminals[key]; ok {
		t.lastUsed = now
		return t, nil
	}

	owned := 0
	for k, t := range s.terminals {
		if now.Sub(t.lastUsed) > s.terminalIdleTTL && t.machine.State() != checkout.StateCommitting {
			delete(s.terminals, k)
			continue
		}
		if strings.HasPrefix(k, owner) {
			owned++
		}
	}
	if owned >= s.maxTerminals {
		return nil, domain.ErrTooManyTerminals
	}

	t := &Terminal{
		id:        terminalID,
		sessionID: xid.New("term"),
		identity:  identity,
		svc:       s,
		machine:   checkout.New(cart.New(), identity, s, s),
		lastUsed:  now,
	}
	s.terminals[key] = t
	return t, nil
}

func (t *Terminal) View(discountCents int64) TerminalView {
	snap := t.machine.Snapshot()
	if snap.Pending != nil && discountCents == 0 {
		discountCents = snap.Pending.DiscountCents
	}
	c := t.machine.Cart()
	return TerminalView{
		TerminalID: t.id,
		SessionID:  t.sessionID,
		Lines:      c.Lines(),
		Totals:     c.Totals(discountCents),
		Checkout:   snap,
	}
}

// Products returns the catalog the terminal prices from, loading it on
// first use.
func (t *Terminal) Products(ctx context.Context) ([]domain.ProductSnapshot, error) {
	t.catalogMu.Lock()
	defer t.catalogMu.Unlock()
	if err := t.loadCatalogLocked(ctx, false); err != nil {
		return nil, err
	}
	out := make([]domain.ProductSnapshot, len(t.catalog))
	copy(out, t.catalog)
	return out, nil
}

func (t *Terminal) Add(ctx context.Context, productID string) (TerminalView, error) {
	product, err := t.lookup(ctx, productID)
	if err != nil {
		return TerminalView{}, err
	}

	err = t.machine.Mutate(func(c *cart.Cart) error {
		return c.Add(product)
	})
	return t.View(0), err
}

func (t *Terminal) Increment(productID string) (TerminalView, error) {
	err := t.machine.Mutate(func(c *cart.Cart) error {
		return c.Increment(productID)
	})
	return t.View(0), err
}

func (t *Terminal) Decrement(productID string) (TerminalView, error) {
	err := t.machine.Mutate(func(c *cart.Cart) error {
		return c.Decrement(productID)
	})
	return t.View(0), err
}

func (t *Terminal) Remove(productID string) (TerminalView, error) {
	err := t.machine.Mutate(func(c *cart.Cart) error {
		c.Remove(productID)
		return nil
	})
	return t.View(0), err
}

func (t *Terminal) Clear() (TerminalView, error) {
	err := t.machine.Mutate(func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
	return t.View(0), err
}

func (t *Terminal) Begin(rawMethod string, discountCents int64) (checkout.Snapshot, error) {
	return t.machine.Begin(rawMethod, discountCents)
}

func (t *Terminal) SubmitReference(reference string) (checkout.Snapshot, error) {
	return t.machine.SubmitReference(reference)
}

func (t *Terminal) Cancel() (checkout.Snapshot, error) {
	return t.machine.Cancel()
}

// Confirm commits the pending checkout. The commit is detached from ctx
// cancellation so a dropped request cannot abandon a half-written sale.
func (t *Terminal) Confirm(ctx context.Context, issueTicket bool) (checkout.Outcome, error) {
	detached := context.WithoutCancel(ctx)
	outcome, err := t.machine.Confirm(detached, issueTicket)
	if err != nil {
		return outcome, err
	}

	t.catalogMu.Lock()
	if err := t.loadCatalogLocked(detached, true); err != nil {
		t.svc.logger.Warn("catalog reload after sale failed",
			zap.String("terminal_id", t.id),
			zap.String("sale_id", outcome.Result.Sale.ID),
			zap.Error(err),
		)
	}
	t.catalogMu.Unlock()
	return outcome, nil
}

// lookup finds productID in the catalog, reloading once on a miss so
// products added since the last load can be sold.
func (t *Terminal) lookup(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	t.catalogMu.Lock()
	defer t.catalogMu.Unlock()

	if err := t.loadCatalogLocked(ctx, false); err != nil {
		return domain.ProductSnapshot{}, err
	}
	if product, ok := t.byID[productID]; ok {
		return product, nil
	}
	if err := t.loadCatalogLocked(ctx, true); err != nil {
		return domain.ProductSnapshot{}, err
	}
	if product, ok := t.byID[productID]; ok {
		return product, nil
	}
	return domain.ProductSnapshot{}, domain.ErrUnknownProduct
}

func (t *Terminal) loadCatalogLocked(ctx context.Context, force bool) error {
	if t.byID != nil && !force {
		return nil
	}
	products, err := t.svc.repo.ListActiveProducts(ctx, t.identity.BusinessID)
	if err != nil {
		t.byID = nil
		return persistence("list products", err)
	}
	t.catalog = products
	t.byID = make(map[string]domain.ProductSnapshot, len(products))
	for _, p := range products {
		t.byID[p.ID] = p
	}
	return nil
}
