package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"posengine/backend/internal/domain"
	"posengine/backend/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token valid for the current hour bucket.
// Clients send it back in X-CSRF-Token on every state-changing request.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) terminal(w http.ResponseWriter, r *http.Request) (*service.Terminal, bool) {
	terminalID := strings.TrimSpace(chi.URLParam(r, "terminalID"))
	if terminalID == "" || len(terminalID) > 64 {
		writeError(w, http.StatusBadRequest, errors.New("invalid terminal id"))
		return nil, false
	}
	t, err := a.service.Terminal(r.Context(), terminalID)
	if err != nil {
		a.writeDomainError(w, err)
		return nil, false
	}
	return t, true
}

func (a *API) handleCartView(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	var discount int64
	if raw := strings.TrimSpace(r.URL.Query().Get("discount_cents")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("discount_cents must be an integer"))
			return
		}
		discount = parsed
	}
	writeJSON(w, http.StatusOK, t.View(discount))
}

func (a *API) handleCartClear(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	a.writeView(w, t.Clear)
}

type cartAddRequest struct {
	ProductID string `json:"product_id"`
}

func (a *API) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	var req cartAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id is required"))
		return
	}
	a.writeView(w, func() (service.TerminalView, error) {
		return t.Add(r.Context(), productID)
	})
}

func (a *API) handleCartIncrement(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	a.writeView(w, func() (service.TerminalView, error) {
		return t.Increment(productID)
	})
}

func (a *API) handleCartDecrement(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	a.writeView(w, func() (service.TerminalView, error) {
		return t.Decrement(productID)
	})
}

func (a *API) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	a.writeView(w, func() (service.TerminalView, error) {
		return t.Remove(productID)
	})
}

func (a *API) writeView(w http.ResponseWriter, op func() (service.TerminalView, error)) {
	view, err := op()
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type checkoutBeginRequest struct {
	PaymentMethod string `json:"payment_method"`
	DiscountCents int64  `json:"discount_cents"`
}

type checkoutReferenceRequest struct {
	Reference string `json:"reference"`
}

type checkoutConfirmRequest struct {
	IssueTicket bool `json:"issue_ticket"`
}

func (a *API) handleCheckoutBegin(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	var req checkoutBeginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := t.Begin(req.PaymentMethod, req.DiscountCents); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.View(0))
}

func (a *API) handleCheckoutReference(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	var req checkoutReferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := t.SubmitReference(req.Reference); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.View(0))
}

func (a *API) handleCheckoutConfirm(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	var req checkoutConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	outcome, err := t.Confirm(r.Context(), req.IssueTicket)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (a *API) handleCheckoutCancel(w http.ResponseWriter, r *http.Request) {
	t, ok := a.terminal(w, r)
	if !ok {
		return
	}
	if _, err := t.Cancel(); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.View(0))
}
