package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"posengine/backend/internal/domain"
	"posengine/backend/internal/report"
)

// SalesReport aggregates the caller's business sales between two local
// calendar dates, both inclusive. Missing dates default to the last 30 days.
func (s *Service) SalesReport(ctx context.Context, req domain.ReportRequest) (domain.SalesReport, error) {
	started := s.now()
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.BusinessID == "" {
		return domain.SalesReport{}, domain.ErrMissingIdentity
	}

	method, err := domain.ParsePaymentMethodFilter(req.PaymentMethod)
	if err != nil {
		return domain.SalesReport{}, err
	}

	business, err := s.Business(ctx, identity.BusinessID)
	if err != nil {
		if isNotFound(err) {
			return domain.SalesReport{}, fmt.Errorf("%w: unknown business", domain.ErrValidation)
		}
		return domain.SalesReport{}, persistence("load business", err)
	}
	loc := s.location(business)

	from, to := strings.TrimSpace(req.From), strings.TrimSpace(req.To)
	if to == "" {
		_, to = report.DefaultRange(started, loc)
	}
	if from == "" {
		toDay, err := time.ParseInLocation(report.DateLayout, to, loc)
		if err != nil {
			return domain.SalesReport{}, fmt.Errorf("%w: to %q", domain.ErrInvalidDateRange, to)
		}
		from, _ = report.DefaultRange(toDay, loc)
	}

	start, end, err := report.Window(from, to, loc)
	if err != nil {
		return domain.SalesReport{}, err
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleQuery{
		BusinessID:    identity.BusinessID,
		From:          start,
		ToExclusive:   end,
		PaymentMethod: method,
	})
	if err != nil {
		return domain.SalesReport{}, persistence("list sales", err)
	}

	out := report.Build(sales, report.Options{
		BusinessID:    identity.BusinessID,
		Currency:      business.Currency,
		Location:      loc,
		From:          from,
		To:            to,
		PaymentMethod: method,
		TopN:          report.DefaultTopN,
	})
	s.metrics.ReportBuilt(s.now().Sub(started))
	return out, nil
}
