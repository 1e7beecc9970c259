package httpapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"posengine/backend/internal/domain"
)

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))

	report, err := a.service.SalesReport(r.Context(), domain.ReportRequest{
		From:          query.Get("from"),
		To:            query.Get("to"),
		PaymentMethod: query.Get("method"),
	})
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	switch format {
	case "csv":
		payload, err := salesReportToCSV(report)
		if err != nil {
			a.writeDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sales-report-%s-%s.csv\"", report.From, report.To))
		_, _ = w.Write(payload)
	case "html", "pdf":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(salesReportToPrintableHTML(report)))
	case "", "json":
		writeJSON(w, http.StatusOK, report)
	default:
		writeError(w, http.StatusBadRequest, errors.New("format must be json, csv or html"))
	}
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if !a.receiptLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many receipt lookups"))
		return
	}
	view, err := a.service.ResolveReceipt(r.Context(), r.URL.Query().Get("t"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleReceiptPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !a.receiptLimiter.Allow(clientKey(r)) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(receiptUnavailableHTML))
		return
	}
	view, err := a.service.ResolveReceipt(r.Context(), r.URL.Query().Get("t"))
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			a.logger.Error("receipt page failed", zap.Int("status", status), zap.Error(err))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(receiptUnavailableHTML))
		return
	}
	_, _ = w.Write([]byte(receiptToPrintableHTML(view)))
}

// formatMoney renders minor units as a two-decimal amount.
func formatMoney(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func formatMoneyDecimal(cents decimal.Decimal) string {
	return cents.Shift(-2).StringFixed(2)
}

func salesReportToCSV(report domain.SalesReport) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	method := string(report.PaymentMethod)
	if method == "" {
		method = "all"
	}
	rows := [][]string{
		{"section", "key", "value", "count"},
		{"summary", "business_id", report.BusinessID, ""},
		{"summary", "currency", report.Currency, ""},
		{"summary", "timezone", report.Timezone, ""},
		{"summary", "from", report.From, ""},
		{"summary", "to", report.To, ""},
		{"summary", "payment_method", method, ""},
		{"summary", "income", formatMoney(report.KPIs.IncomeCents), strconv.Itoa(report.KPIs.SaleCount)},
		{"summary", "avg_ticket", formatMoneyDecimal(report.KPIs.AvgTicketCents), ""},
		{"summary", "projection_30d", formatMoneyDecimal(report.KPIs.Projection30Cents), ""},
	}
	for _, day := range report.Daily {
		rows = append(rows, []string{"daily", day.Date, formatMoney(day.TotalCents), ""})
	}
	for _, m := range report.ByMethod {
		rows = append(rows, []string{"method", m.Label, formatMoney(m.TotalCents), strconv.Itoa(m.Sales)})
	}
	for _, p := range report.TopProducts {
		rows = append(rows, []string{"product", p.Name, "", strconv.Itoa(p.Quantity)})
	}
	for _, e := range report.ByEmployee {
		rows = append(rows, []string{"employee", e.Label, formatMoney(e.TotalIncomeCents), strconv.Itoa(e.Sales)})
	}

	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var exportFuncs = template.FuncMap{
	"money":   formatMoney,
	"moneyD":  formatMoneyDecimal,
	"methodL": func(m domain.PaymentMethod) string { return m.Label() },
}

// salesReportHTMLTmpl renders printable reports; html/template escapes
// every product, employee and business string.
var salesReportHTMLTmpl = template.Must(template.New("sales-report").Funcs(exportFuncs).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Sales Report {{.From}} - {{.To}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Sales Report {{.From}} - {{.To}}</h2>
  <p>Timezone: {{.Timezone}} | Currency: {{.Currency}}{{if .PaymentMethod}} | Method: {{methodL .PaymentMethod}}{{end}}</p>
  <p>Income: {{money .KPIs.IncomeCents}} | Sales: {{.KPIs.SaleCount}} | Avg ticket: {{moneyD .KPIs.AvgTicketCents}} | 30-day projection: {{moneyD .KPIs.Projection30Cents}}</p>

  <h3>Daily</h3>
  <table>
    <thead><tr><th>Date</th><th>Total</th></tr></thead>
    <tbody>{{range .Daily}}<tr><td>{{.Date}}</td><td class="num">{{money .TotalCents}}</td></tr>{{end}}</tbody>
  </table>

  <h3>By Payment Method</h3>
  <table>
    <thead><tr><th>Method</th><th>Sales</th><th>Total</th></tr></thead>
    <tbody>{{range .ByMethod}}<tr><td>{{.Label}}</td><td class="num">{{.Sales}}</td><td class="num">{{money .TotalCents}}</td></tr>{{end}}</tbody>
  </table>

  <h3>Top Products</h3>
  <table>
    <thead><tr><th>Product</th><th>Quantity</th></tr></thead>
    <tbody>{{range .TopProducts}}<tr><td>{{.Name}}</td><td class="num">{{.Quantity}}</td></tr>{{end}}</tbody>
  </table>

  <h3>By Employee</h3>
  <table>
    <thead><tr><th>Employee</th><th>Sales</th><th>Items</th><th>Income</th><th>Avg ticket</th></tr></thead>
    <tbody>{{range .ByEmployee}}<tr><td>{{.Label}}</td><td class="num">{{.Sales}}</td><td class="num">{{.TotalItems}}</td><td class="num">{{money .TotalIncomeCents}}</td><td class="num">{{moneyD .AvgTicketCents}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func salesReportToPrintableHTML(report domain.SalesReport) string {
	var buf bytes.Buffer
	if err := salesReportHTMLTmpl.Execute(&buf, report); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

const receiptUnavailableHTML = `<!doctype html><html><head><meta charset="utf-8" /><title>Receipt</title></head><body><p>Receipt unavailable.</p></body></html>`

type receiptPage struct {
	domain.ReceiptView
	LocalTime string
}

var receiptHTMLTmpl = template.Must(template.New("receipt").Funcs(exportFuncs).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Business.Name}} - {{.Sale.Folio}}</title>
  <style>
    body { font-family: monospace; max-width: 360px; margin: 16px auto; }
    table { width: 100%; border-collapse: collapse; }
    td { padding: 2px 0; font-size: 13px; }
    td.num { text-align: right; }
    .total { font-weight: bold; border-top: 1px dashed #999; }
  </style>
</head>
<body>
  {{if .Business.LogoURL}}<img src="{{.Business.LogoURL}}" alt="" height="48" />{{end}}
  <h3>{{.Business.Name}}</h3>
  <p>Folio {{.Sale.Folio}}<br />{{.LocalTime}}</p>
  <table>
    <tbody>{{range .Sale.Items}}<tr><td>{{.Quantity}} x {{.Name}}</td><td class="num">{{money .LineTotalCents}}</td></tr>{{end}}</tbody>
  </table>
  <table>
    <tr><td>Subtotal</td><td class="num">{{money .Sale.SubtotalCents}}</td></tr>
    {{if .Sale.DiscountCents}}<tr><td>Discount</td><td class="num">-{{money .Sale.DiscountCents}}</td></tr>{{end}}
    <tr class="total"><td>Total {{.Business.Currency}}</td><td class="num">{{money .Sale.TotalCents}}</td></tr>
    <tr><td>Payment</td><td class="num">{{.Sale.PaymentLabel}}</td></tr>
    {{if .Sale.Reference}}<tr><td>Reference</td><td class="num">{{.Sale.Reference}}</td></tr>{{end}}
  </table>
</body>
</html>
`))

func receiptToPrintableHTML(view domain.ReceiptView) string {
	loc, err := time.LoadLocation(view.Business.Timezone)
	if err != nil {
		loc = time.UTC
	}
	page := receiptPage{
		ReceiptView: view,
		LocalTime:   view.Sale.CreatedAt.In(loc).Format("2006-01-02 15:04"),
	}
	var buf bytes.Buffer
	if err := receiptHTMLTmpl.Execute(&buf, page); err != nil {
		return receiptUnavailableHTML
	}
	return buf.String()
}
