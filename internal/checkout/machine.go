// Package checkout drives one terminal's sale from a ready cart to a
// committed sale record.
package checkout

import (
	"context"
	"errors"
	"sync"

	"posengine/backend/internal/cart"
	"posengine/backend/internal/domain"
)

type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingReference    State = "awaiting_reference"
	StateAwaitingTicketChoice State = "awaiting_ticket_choice"
	StateCommitting           State = "committing"
	StateCommitted            State = "committed"
	StateCancelled            State = "cancelled"
)

func (s State) String() string {
	return string(s)
}

// CanBegin reports whether a new checkout may start from s.
func (s State) CanBegin() bool {
	return s == StateIdle || s == StateCommitted || s == StateCancelled
}

// Pending reports whether s holds a PendingCheckout.
func (s State) Pending() bool {
	return s == StateAwaitingReference || s == StateAwaitingTicketChoice
}

type Committer interface {
	CommitSale(ctx context.Context, req domain.CommitRequest) (domain.CommitResult, error)
}

type ReceiptIssuer interface {
	IssueReceipt(ctx context.Context, saleID string, businessID string, createdBy string) (domain.IssuedReceipt, error)
}

// Outcome is what Confirm hands back after a sale was recorded.
type Outcome struct {
	Result       domain.CommitResult   `json:"result"`
	Receipt      *domain.IssuedReceipt `json:"receipt,omitempty"`
	ReceiptError string                `json:"receipt_error,omitempty"`
}

type Snapshot struct {
	State   State                   `json:"state"`
	Pending *domain.PendingCheckout `json:"pending,omitempty"`
}

type Machine struct {
	mu        sync.Mutex
	cart      *cart.Cart
	identity  domain.Identity
	committer Committer
	issuer    ReceiptIssuer
	state     State
	pending   *domain.PendingCheckout
}

func New(c *cart.Cart, identity domain.Identity, committer Committer, issuer ReceiptIssuer) *Machine {
	if c == nil {
		c = cart.New()
	}
	return &Machine{
		cart:      c,
		identity:  identity,
		committer: committer,
		issuer:    issuer,
		state:     StateIdle,
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mutate applies fn to the cart unless a commit is in flight.
func (m *Machine) Mutate(fn func(c *cart.Cart) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCommitting {
		return domain.ErrCommitInFlight
	}
	return fn(m.cart)
}

// Cart exposes the cart for reads. Writes go through Mutate.
func (m *Machine) Cart() *cart.Cart {
	return m.cart
}

func (m *Machine) Begin(rawMethod string, discountCents int64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateCommitting {
		return m.snapshotLocked(), domain.ErrCommitInFlight
	}
	if !m.state.CanBegin() {
		return m.snapshotLocked(), domain.ErrInvalidState
	}
	if m.cart.Len() == 0 {
		return m.snapshotLocked(), domain.ErrEmptyCart
	}
	if discountCents < 0 {
		discountCents = 0
	}

	method := domain.NormalizePaymentMethod(rawMethod)
	m.pending = &domain.PendingCheckout{PaymentMethod: method, DiscountCents: discountCents}
	if method.RequiresReference() {
		m.state = StateAwaitingReference
	} else {
		m.state = StateAwaitingTicketChoice
	}
	return m.snapshotLocked(), nil
}

// SubmitReference records the reference. An empty reference keeps the
// machine where it is.
func (m *Machine) SubmitReference(reference string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAwaitingReference {
		return m.snapshotLocked(), domain.ErrInvalidState
	}
	reference = domain.NormalizeReference(reference)
	if reference == "" {
		return m.snapshotLocked(), domain.ErrMissingReference
	}
	m.pending.Reference = reference
	m.state = StateAwaitingTicketChoice
	return m.snapshotLocked(), nil
}

func (m *Machine) Cancel() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state == StateCommitting:
		return m.snapshotLocked(), domain.ErrCommitInFlight
	case m.state.Pending():
		m.pending = nil
		m.state = StateCancelled
		return m.snapshotLocked(), nil
	default:
		return m.snapshotLocked(), domain.ErrInvalidState
	}
}

// Confirm commits the pending sale. The lock is released while the commit
// runs; the committing state keeps other transitions and cart edits out.
func (m *Machine) Confirm(ctx context.Context, issueTicket bool) (Outcome, error) {
	m.mu.Lock()
	if m.state == StateCommitting {
		m.mu.Unlock()
		return Outcome{}, domain.ErrCommitInFlight
	}
	if m.state != StateAwaitingTicketChoice {
		m.mu.Unlock()
		return Outcome{}, domain.ErrInvalidState
	}
	lines := m.cart.Lines()
	if len(lines) == 0 {
		m.mu.Unlock()
		return Outcome{}, domain.ErrEmptyCart
	}
	pending := *m.pending
	m.state = StateCommitting
	m.mu.Unlock()

	result, err := m.committer.CommitSale(ctx, domain.CommitRequest{
		Identity:      m.identity,
		Lines:         lines,
		DiscountCents: pending.DiscountCents,
		PaymentMethod: pending.PaymentMethod,
		Reference:     pending.Reference,
	})

	m.mu.Lock()
	if err != nil {
		m.state = StateAwaitingTicketChoice
		if errors.Is(err, domain.ErrMissingReference) {
			m.state = StateAwaitingReference
		}
		m.mu.Unlock()
		return Outcome{}, err
	}
	m.state = StateCommitted
	m.pending = nil
	m.cart.Clear()
	m.mu.Unlock()

	outcome := Outcome{Result: result}
	if !issueTicket || m.issuer == nil {
		return outcome, nil
	}
	receipt, err := m.issuer.IssueReceipt(ctx, result.Sale.ID, result.Sale.BusinessID, result.Sale.CreatedBy)
	if err != nil {
		outcome.ReceiptError = err.Error()
		return outcome, nil
	}
	outcome.Receipt = &receipt
	return outcome, nil
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state}
	if m.pending != nil {
		pending := *m.pending
		snap.Pending = &pending
	}
	return snap
}
