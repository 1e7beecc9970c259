package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"posengine/backend/internal/cache"
	"posengine/backend/internal/domain"
	"posengine/backend/internal/store"
	"posengine/backend/internal/xid"
)

// IssueReceipt creates a public share link for a committed sale. Links are
// append-only: a token clash is reported, never overwritten.
func (s *Service) IssueReceipt(ctx context.Context, saleID string, businessID string, createdBy string) (domain.IssuedReceipt, error) {
	if strings.TrimSpace(saleID) == "" || strings.TrimSpace(businessID) == "" {
		return domain.IssuedReceipt{}, fmt.Errorf("%w: sale and business are required", domain.ErrValidation)
	}

	token, err := xid.Token()
	if err != nil {
		return domain.IssuedReceipt{}, err
	}
	link := domain.ReceiptLink{
		Token:      token,
		SaleID:     saleID,
		BusinessID: businessID,
		CreatedBy:  createdBy,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.InsertReceiptLink(ctx, link); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.IssuedReceipt{}, domain.ErrTokenCollision
		}
		return domain.IssuedReceipt{}, persistence("insert receipt link", err)
	}

	s.metrics.ReceiptIssued()
	return domain.IssuedReceipt{Token: token, URL: s.ReceiptURL(token)}, nil
}

func (s *Service) ReceiptURL(token string) string {
	return s.receiptBaseURL + "/r?t=" + url.QueryEscape(token)
}

// ResolveReceipt returns the public view of the sale behind token. Every
// way of not finding it looks the same to the caller: ErrInvalidToken.
func (s *Service) ResolveReceipt(ctx context.Context, token string) (domain.ReceiptView, error) {
	token = strings.TrimSpace(token)
	if !xid.ValidToken(token) {
		s.metrics.ReceiptLookup("invalid")
		return domain.ReceiptView{}, domain.ErrInvalidToken
	}

	key := cache.ReceiptKey(token)
	var cached domain.ReceiptView
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Debug("receipt cache read failed", zap.Error(err))
	} else if ok {
		s.metrics.ReceiptLookup("cache_hit")
		return cached, nil
	}

	link, err := s.repo.FindReceiptLink(ctx, token)
	if err != nil {
		return domain.ReceiptView{}, s.receiptLookupError("find receipt link", err)
	}
	business, err := s.Business(ctx, link.BusinessID)
	if err != nil {
		return domain.ReceiptView{}, s.receiptLookupError("load business", err)
	}
	sale, err := s.repo.GetSale(ctx, link.BusinessID, link.SaleID)
	if err != nil {
		return domain.ReceiptView{}, s.receiptLookupError("load sale", err)
	}

	view := buildReceiptView(business, sale)
	if err := s.cache.Set(ctx, key, view, s.cacheTTL); err != nil {
		s.logger.Warn("receipt cache write failed", zap.String("sale_id", sale.ID), zap.Error(err))
	}
	s.metrics.ReceiptLookup("found")
	return view, nil
}

func (s *Service) receiptLookupError(op string, err error) error {
	if isNotFound(err) {
		s.metrics.ReceiptLookup("invalid")
		return domain.ErrInvalidToken
	}
	s.metrics.ReceiptLookup("error")
	return persistence(op, err)
}

func buildReceiptView(business domain.Business, sale domain.Sale) domain.ReceiptView {
	items := make([]domain.ReceiptItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, domain.ReceiptItem{
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}

	return domain.ReceiptView{
		Business: domain.PublicBusiness{
			Name:     business.Name,
			Handle:   business.Handle,
			Category: business.Category,
			Currency: business.Currency,
			Timezone: business.Timezone,
			LogoURL:  business.LogoURL,
		},
		Sale: domain.ReceiptSale{
			Folio:         sale.Folio(),
			CreatedAt:     sale.CreatedAt,
			PaymentMethod: sale.PaymentMethod,
			PaymentLabel:  sale.PaymentMethod.Label(),
			Reference:     domain.ParseReferenceNote(sale.Note),
			SubtotalCents: sale.SubtotalCents,
			DiscountCents: sale.DiscountCents,
			TaxCents:      sale.TaxCents,
			TotalCents:    sale.TotalCents,
			Items:         items,
		},
	}
}
