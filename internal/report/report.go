// Package report turns a filtered set of committed sales into dashboard
// aggregates. Every function here is pure and independent of the others.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posengine/backend/internal/domain"
)

const (
	DateLayout        = "2006-01-02"
	DefaultTopN       = 7
	DefaultRangeDays  = 30
	ProjectionWindow  = 14
	ProjectionHorizon = 30
)

// Window converts inclusive local calendar dates into the UTC half-open
// interval [start of from, start of the day after to).
func Window(from string, to string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	fromDay, err := time.ParseInLocation(DateLayout, strings.TrimSpace(from), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %q", domain.ErrInvalidDateRange, from)
	}
	toDay, err := time.ParseInLocation(DateLayout, strings.TrimSpace(to), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to %q", domain.ErrInvalidDateRange, to)
	}
	if fromDay.After(toDay) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %s is after to %s", domain.ErrInvalidDateRange, from, to)
	}
	start := StartOfDay(fromDay, loc)
	end := StartOfDay(toDay.AddDate(0, 0, 1), loc)
	return start.UTC(), end.UTC(), nil
}

// StartOfDay is local midnight of t's calendar date in loc. time.Date
// normalizes a midnight skipped by a DST jump to the first valid instant.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DefaultRange returns the last DefaultRangeDays local days ending today.
func DefaultRange(now time.Time, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	from := today.AddDate(0, 0, -(DefaultRangeDays - 1))
	return from.Format(DateLayout), today.Format(DateLayout)
}

// LocalDate formats the business-local calendar date of t.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

func Daily(sales []domain.Sale, loc *time.Location) []domain.DailyAggregate {
	if loc == nil {
		loc = time.UTC
	}
	totals := make(map[string]int64)
	for _, sale := range sales {
		totals[LocalDate(sale.CreatedAt, loc)] += sale.TotalCents
	}
	days := make([]string, 0, len(totals))
	for day := range totals {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]domain.DailyAggregate, 0, len(days))
	for _, day := range days {
		out = append(out, domain.DailyAggregate{Date: day, TotalCents: totals[day]})
	}
	return out
}

// ByMethod lists canonical methods first, then any other method in the
// order it was first seen. Methods without sales are omitted.
func ByMethod(sales []domain.Sale) []domain.MethodAggregate {
	index := make(map[domain.PaymentMethod]int)
	var seen []domain.MethodAggregate
	for _, sale := range sales {
		method := sale.PaymentMethod
		idx, ok := index[method]
		if !ok {
			idx = len(seen)
			index[method] = idx
			seen = append(seen, domain.MethodAggregate{PaymentMethod: method, Label: method.Label()})
		}
		seen[idx].TotalCents += sale.TotalCents
		seen[idx].Sales++
	}

	out := make([]domain.MethodAggregate, 0, len(seen))
	canonical := make(map[domain.PaymentMethod]bool, len(domain.CanonicalPaymentMethods))
	for _, method := range domain.CanonicalPaymentMethods {
		canonical[method] = true
		if idx, ok := index[method]; ok {
			out = append(out, seen[idx])
		}
	}
	for _, agg := range seen {
		if !canonical[agg.PaymentMethod] {
			out = append(out, agg)
		}
	}
	return out
}

// TopProducts ranks items by quantity sold. Ties keep first-seen order.
func TopProducts(sales []domain.Sale, n int) []domain.ProductAggregate {
	if n <= 0 {
		n = DefaultTopN
	}
	index := make(map[string]int)
	var products []domain.ProductAggregate
	for _, sale := range sales {
		for _, item := range sale.Items {
			name := productLabel(item)
			idx, ok := index[name]
			if !ok {
				idx = len(products)
				index[name] = idx
				products = append(products, domain.ProductAggregate{Name: name})
			}
			products[idx].Quantity += item.Quantity
		}
	}
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Quantity > products[j].Quantity
	})
	if len(products) > n {
		products = products[:n]
	}
	if products == nil {
		products = []domain.ProductAggregate{}
	}
	return products
}

// ByEmployee sorts by income descending. Ties keep first-seen order.
func ByEmployee(sales []domain.Sale) []domain.EmployeeAggregate {
	index := make(map[string]int)
	var employees []domain.EmployeeAggregate
	for _, sale := range sales {
		label := EmployeeLabel(sale)
		idx, ok := index[label]
		if !ok {
			idx = len(employees)
			index[label] = idx
			employees = append(employees, domain.EmployeeAggregate{Label: label})
		}
		employees[idx].Sales++
		employees[idx].TotalIncomeCents += sale.TotalCents
		for _, item := range sale.Items {
			employees[idx].TotalItems += item.Quantity
		}
	}
	for i := range employees {
		employees[i].AvgTicketCents = average(employees[i].TotalIncomeCents, employees[i].Sales)
	}
	sort.SliceStable(employees, func(i, j int) bool {
		return employees[i].TotalIncomeCents > employees[j].TotalIncomeCents
	})
	if employees == nil {
		employees = []domain.EmployeeAggregate{}
	}
	return employees
}

// EmployeeLabel prefers the cashier name recorded on the sale, then a short
// label derived from the creator id.
func EmployeeLabel(sale domain.Sale) string {
	if name := strings.TrimSpace(sale.CreatedByName); name != "" {
		return name
	}
	if short := domain.ShortID(sale.CreatedBy); short != "" {
		return "Emp " + short
	}
	return "Unassigned"
}

// Projection averages the last ProjectionWindow daily totals and scales the
// average to ProjectionHorizon days.
func Projection(daily []domain.DailyAggregate) decimal.Decimal {
	if len(daily) == 0 {
		return decimal.Zero
	}
	window := daily
	if len(window) > ProjectionWindow {
		window = window[len(window)-ProjectionWindow:]
	}
	var sum int64
	for _, day := range window {
		sum += day.TotalCents
	}
	return average(sum*ProjectionHorizon, len(window))
}

func KPIs(sales []domain.Sale, daily []domain.DailyAggregate) domain.ReportKPIs {
	var income int64
	for _, sale := range sales {
		income += sale.TotalCents
	}
	return domain.ReportKPIs{
		IncomeCents:       income,
		SaleCount:         len(sales),
		AvgTicketCents:    average(income, len(sales)),
		Projection30Cents: Projection(daily),
	}
}

type Options struct {
	BusinessID    string
	Currency      string
	Location      *time.Location
	From          string
	To            string
	PaymentMethod domain.PaymentMethod
	TopN          int
}

func Build(sales []domain.Sale, opts Options) domain.SalesReport {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	daily := Daily(sales, loc)
	return domain.SalesReport{
		BusinessID:    opts.BusinessID,
		Currency:      opts.Currency,
		Timezone:      loc.String(),
		From:          opts.From,
		To:            opts.To,
		PaymentMethod: opts.PaymentMethod,
		KPIs:          KPIs(sales, daily),
		Daily:         daily,
		ByMethod:      ByMethod(sales),
		TopProducts:   TopProducts(sales, opts.TopN),
		ByEmployee:    ByEmployee(sales),
	}
}

func productLabel(item domain.SaleItem) string {
	if name := strings.TrimSpace(item.Name); name != "" {
		return name
	}
	if item.ProductID != "" {
		return item.ProductID
	}
	return "Product"
}

// average rounds to two decimal places of a cent.
func average(total int64, count int) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(total).DivRound(decimal.NewFromInt(int64(count)), 2)
}
