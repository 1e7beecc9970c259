package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posengine/backend/internal/cart"
	"posengine/backend/internal/domain"
)

type fakeCommitter struct {
	mu       sync.Mutex
	requests []domain.CommitRequest
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeCommitter) CommitSale(_ context.Context, req domain.CommitRequest) (domain.CommitResult, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.CommitResult{}, f.err
	}
	totals := cart.Totals(req.Lines, req.DiscountCents)
	return domain.CommitResult{
		Sale: domain.Sale{
			ID:            fmt.Sprintf("sale-%d", len(f.requests)),
			BusinessID:    req.Identity.BusinessID,
			CreatedBy:     req.Identity.UserID,
			PaymentMethod: req.PaymentMethod,
			SubtotalCents: totals.SubtotalCents,
			TotalCents:    totals.TotalCents,
			Note:          domain.EncodeReferenceNote(req.Reference),
		},
		ItemsPersisted: true,
	}, nil
}

type fakeIssuer struct {
	calls int
	err   error
}

func (f *fakeIssuer) IssueReceipt(_ context.Context, saleID string, _ string, _ string) (domain.IssuedReceipt, error) {
	f.calls++
	if f.err != nil {
		return domain.IssuedReceipt{}, f.err
	}
	return domain.IssuedReceipt{Token: "tok-" + saleID, URL: "/r?t=tok-" + saleID}, nil
}

var testIdentity = domain.Identity{BusinessID: "biz-1", UserID: "user-1", DisplayName: "Ana"}

func newMachine(t *testing.T, committer *fakeCommitter, issuer *fakeIssuer) *Machine {
	t.Helper()
	c := cart.New()
	require.NoError(t, c.Add(domain.ProductSnapshot{ID: "p1", Name: "Coffee", PriceCents: 2000, Stock: 5}))
	require.NoError(t, c.Add(domain.ProductSnapshot{ID: "p1", Name: "Coffee", PriceCents: 2000, Stock: 5}))
	return New(c, testIdentity, committer, issuer)
}

func TestBeginRequiresItems(t *testing.T) {
	m := New(cart.New(), testIdentity, &fakeCommitter{}, nil)
	snap, err := m.Begin("cash", 0)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Pending)
}

func TestCashSkipsReference(t *testing.T) {
	m := newMachine(t, &fakeCommitter{}, nil)
	snap, err := m.Begin("efectivo", 0)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingTicketChoice, snap.State)
	assert.Equal(t, domain.PaymentCash, snap.Pending.PaymentMethod)
}

func TestUnknownMethodDefaultsToCash(t *testing.T) {
	m := newMachine(t, &fakeCommitter{}, nil)
	snap, err := m.Begin("crypto", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCash, snap.Pending.PaymentMethod)
	assert.Equal(t, StateAwaitingTicketChoice, snap.State)
}

func TestCardRequiresReferenceBeforeCommit(t *testing.T) {
	committer := &fakeCommitter{}
	m := newMachine(t, committer, nil)

	snap, err := m.Begin("card", 0)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingReference, snap.State)

	_, err = m.Confirm(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	snap, err = m.SubmitReference("   ")
	assert.ErrorIs(t, err, domain.ErrMissingReference)
	assert.Equal(t, StateAwaitingReference, snap.State)

	snap, err = m.SubmitReference("ABC123")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingTicketChoice, snap.State)

	outcome, err := m.Confirm(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "Ref: ABC123", outcome.Result.Sale.Note)
	assert.Equal(t, StateCommitted, m.State())
	assert.Equal(t, 0, m.Cart().Len())
	require.Len(t, committer.requests, 1)
	assert.Equal(t, "ABC123", committer.requests[0].Reference)
	assert.Equal(t, testIdentity, committer.requests[0].Identity)
}

func TestReferenceWhitespaceIsCollapsed(t *testing.T) {
	committer := &fakeCommitter{}
	m := newMachine(t, committer, nil)

	_, err := m.Begin("transfer", 0)
	require.NoError(t, err)
	snap, err := m.SubmitReference(" SPEI\n 0042 ")
	require.NoError(t, err)
	assert.Equal(t, "SPEI 0042", snap.Pending.Reference)

	outcome, err := m.Confirm(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "SPEI 0042", domain.ParseReferenceNote(outcome.Result.Sale.Note))
}

func TestCommitFailureKeepsPendingForRetry(t *testing.T) {
	committer := &fakeCommitter{err: fmt.Errorf("insert sale: %w: %w", domain.ErrPersistence, errors.New("connection reset"))}
	m := newMachine(t, committer, nil)

	_, err := m.Begin("transfer", 500)
	require.NoError(t, err)
	_, err = m.SubmitReference("TRX-9")
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), true)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	snap := m.Snapshot()
	assert.Equal(t, StateAwaitingTicketChoice, snap.State)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "TRX-9", snap.Pending.Reference)
	assert.Equal(t, int64(500), snap.Pending.DiscountCents)
	assert.Equal(t, 1, m.Cart().Len())

	committer.err = nil
	outcome, err := m.Confirm(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), outcome.Result.Sale.TotalCents)
	assert.Equal(t, StateCommitted, m.State())
}

func TestCancelLeavesCartUntouched(t *testing.T) {
	m := newMachine(t, &fakeCommitter{}, nil)
	_, err := m.Begin("mixed", 0)
	require.NoError(t, err)

	snap, err := m.Cancel()
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, snap.State)
	assert.Nil(t, snap.Pending)
	assert.Equal(t, 1, m.Cart().Len())

	_, err = m.Cancel()
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	snap, err = m.Begin("cash", 0)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingTicketChoice, snap.State)
}

func TestTicketChoiceGatesReceipt(t *testing.T) {
	issuer := &fakeIssuer{}
	m := newMachine(t, &fakeCommitter{}, issuer)
	_, err := m.Begin("cash", 0)
	require.NoError(t, err)

	outcome, err := m.Confirm(context.Background(), true)
	require.NoError(t, err)
	require.NotNil(t, outcome.Receipt)
	assert.Equal(t, "tok-sale-1", outcome.Receipt.Token)
	assert.Equal(t, 1, issuer.calls)
}

func TestReceiptFailureDoesNotUndoCommit(t *testing.T) {
	issuer := &fakeIssuer{err: domain.ErrTokenCollision}
	m := newMachine(t, &fakeCommitter{}, issuer)
	_, err := m.Begin("cash", 0)
	require.NoError(t, err)

	outcome, err := m.Confirm(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, outcome.Receipt)
	assert.NotEmpty(t, outcome.ReceiptError)
	assert.Equal(t, "sale-1", outcome.Result.Sale.ID)
	assert.Equal(t, StateCommitted, m.State())
}

func TestNoTicketSkipsIssuer(t *testing.T) {
	issuer := &fakeIssuer{}
	m := newMachine(t, &fakeCommitter{}, issuer)
	_, err := m.Begin("cash", 0)
	require.NoError(t, err)
	_, err = m.Confirm(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, issuer.calls)
}

func TestCommitInFlightBlocksEverything(t *testing.T) {
	committer := &fakeCommitter{block: make(chan struct{}), started: make(chan struct{})}
	m := newMachine(t, committer, nil)
	_, err := m.Begin("cash", 0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Confirm(context.Background(), false)
		done <- err
	}()

	select {
	case <-committer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("commit did not start")
	}

	assert.Equal(t, StateCommitting, m.State())
	_, err = m.Confirm(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrCommitInFlight)
	_, err = m.Cancel()
	assert.ErrorIs(t, err, domain.ErrCommitInFlight)
	_, err = m.Begin("cash", 0)
	assert.ErrorIs(t, err, domain.ErrCommitInFlight)
	err = m.Mutate(func(c *cart.Cart) error { c.Clear(); return nil })
	assert.ErrorIs(t, err, domain.ErrCommitInFlight)

	close(committer.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateCommitted, m.State())
	assert.Len(t, committer.requests, 1)
}

func TestBeginRejectedWhilePending(t *testing.T) {
	m := newMachine(t, &fakeCommitter{}, nil)
	_, err := m.Begin("card", 0)
	require.NoError(t, err)
	_, err = m.Begin("cash", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
