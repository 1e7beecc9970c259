package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"posengine/backend/internal/cart"
	"posengine/backend/internal/domain"
	"posengine/backend/internal/store"
)

// CommitSale records a sale in three steps: header, items, stock. A non-nil
// error means nothing was recorded. Once the header is written the sale is
// returned even if a later step failed; see CommitResult.
func (s *Service) CommitSale(ctx context.Context, req domain.CommitRequest) (domain.CommitResult, error) {
	started := s.now()
	identity := req.Identity
	if identity.BusinessID == "" || identity.UserID == "" {
		s.metrics.CommitFailed("validation")
		return domain.CommitResult{}, domain.ErrMissingIdentity
	}

	lines := make([]domain.CartLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity > 0 {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		s.metrics.CommitFailed("validation")
		return domain.CommitResult{}, domain.ErrEmptyCart
	}

	method := domain.NormalizePaymentMethod(string(req.PaymentMethod))
	reference := domain.NormalizeReference(req.Reference)
	if method.RequiresReference() && reference == "" {
		s.metrics.CommitFailed("validation")
		return domain.CommitResult{}, domain.ErrMissingReference
	}

	totals := cart.Totals(lines, req.DiscountCents)
	if totals.TotalCents <= 0 {
		s.metrics.CommitFailed("validation")
		return domain.CommitResult{}, domain.ErrInvalidTotal
	}

	header := domain.Sale{
		BusinessID:    identity.BusinessID,
		CreatedBy:     identity.UserID,
		CreatedByName: strings.TrimSpace(identity.DisplayName),
		CreatedAt:     started.UTC(),
		PaymentMethod: method,
		SubtotalCents: totals.SubtotalCents,
		DiscountCents: totals.DiscountCents,
		TotalCents:    totals.TotalCents,
		Status:        domain.SaleStatusPaid,
	}
	if method.RequiresReference() {
		header.Note = domain.EncodeReferenceNote(reference)
	}

	sale, err := s.repo.InsertSale(ctx, header)
	if err != nil {
		s.metrics.CommitFailed("persistence")
		return domain.CommitResult{}, persistence("insert sale", err)
	}

	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.SaleItem{
			SaleID:         sale.ID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: line.LineTotalCents(),
		})
	}
	sale.Items = items

	result := domain.CommitResult{Sale: sale, ItemsPersisted: true}
	if err := s.repo.InsertSaleItems(ctx, items); err != nil {
		result.ItemsPersisted = false
		result.ItemsError = err.Error()
		s.metrics.DownstreamFailed("items")
		s.logger.Warn("sale items not persisted",
			zap.String("sale_id", sale.ID),
			zap.String("step", "items"),
			zap.Int("items", len(items)),
			zap.Error(err),
		)
	}

	result.StockAnomalies = s.decrementStock(ctx, sale, lines)
	s.metrics.StockAnomalies(len(result.StockAnomalies))
	s.metrics.SaleCommitted(string(sale.PaymentMethod), sale.TotalCents, s.now().Sub(started))

	s.logger.Info("sale committed",
		zap.String("sale_id", sale.ID),
		zap.String("business_id", sale.BusinessID),
		zap.String("payment_method", string(sale.PaymentMethod)),
		zap.Int64("total_cents", sale.TotalCents),
		zap.Bool("degraded", result.Degraded()),
	)
	return result, nil
}

// decrementStock lowers stock for every sold product, clamping at zero. All
// products are attempted; failures come back as anomalies.
func (s *Service) decrementStock(ctx context.Context, sale domain.Sale, lines []domain.CartLine) []domain.StockAnomaly {
	ids := make([]string, 0, len(lines))
	sold := make(map[string]int, len(lines))
	for _, line := range lines {
		if _, seen := sold[line.ProductID]; !seen {
			ids = append(ids, line.ProductID)
		}
		sold[line.ProductID] += line.Quantity
	}

	var anomalies []domain.StockAnomaly
	if dec, ok := s.repo.(store.StockDecrementer); ok && s.atomicStock {
		for i, id := range ids {
			if _, err := dec.DecrementStock(ctx, sale.BusinessID, id, sold[id]); err != nil {
				if errors.Is(err, errors.ErrUnsupported) {
					return append(anomalies, s.setStock(ctx, sale, ids[i:], sold)...)
				}
				anomalies = append(anomalies, s.stockAnomaly(sale, id, sold[id], err))
			}
		}
		return anomalies
	}
	return s.setStock(ctx, sale, ids, sold)
}

func (s *Service) setStock(ctx context.Context, sale domain.Sale, ids []string, sold map[string]int) []domain.StockAnomaly {
	levels, err := s.repo.GetStockLevels(ctx, sale.BusinessID, ids)
	if err != nil {
		anomalies := make([]domain.StockAnomaly, 0, len(ids))
		for _, id := range ids {
			anomalies = append(anomalies, s.stockAnomaly(sale, id, sold[id], err))
		}
		return anomalies
	}

	var anomalies []domain.StockAnomaly
	for _, id := range ids {
		before := levels[id]
		after := before - sold[id]
		if after < 0 {
			s.logger.Warn("stock clamped at zero",
				zap.String("sale_id", sale.ID),
				zap.String("product_id", id),
				zap.Int("stock_before", before),
				zap.Int("sold_qty", sold[id]),
			)
			after = 0
		}
		if err := s.repo.SetStock(ctx, sale.BusinessID, id, after); err != nil {
			anomalies = append(anomalies, s.stockAnomaly(sale, id, sold[id], err))
		}
	}
	return anomalies
}

func (s *Service) stockAnomaly(sale domain.Sale, productID string, qty int, err error) domain.StockAnomaly {
	s.metrics.DownstreamFailed("stock")
	s.logger.Warn("stock not updated after sale",
		zap.String("sale_id", sale.ID),
		zap.String("product_id", productID),
		zap.String("step", "stock"),
		zap.Int("sold_qty", qty),
		zap.Error(err),
	)
	return domain.StockAnomaly{
		ProductID:   productID,
		SoldQty:     qty,
		Description: fmt.Sprintf("stock not decremented by %d: %v", qty, err),
	}
}
