// Package metrics exposes prometheus collectors for the sale flow. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	salesCommitted     *prometheus.CounterVec
	revenueCents       *prometheus.CounterVec
	commitFailures     *prometheus.CounterVec
	downstreamFailures *prometheus.CounterVec
	stockAnomalies     prometheus.Counter
	receiptsIssued     prometheus.Counter
	receiptLookups     *prometheus.CounterVec
	commitDuration     prometheus.Histogram
	reportDuration     prometheus.Histogram
	httpRequests       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		salesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "sales_committed_total",
			Help:      "Sales whose header was recorded, by payment method.",
		}, []string{"method"}),
		revenueCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "revenue_cents_total",
			Help:      "Recorded sale totals in minor currency units, by payment method.",
		}, []string{"method"}),
		commitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "commit_failures_total",
			Help:      "Commits rejected before a sale was recorded, by reason.",
		}, []string{"reason"}),
		downstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "commit_downstream_failures_total",
			Help:      "Failures after the sale header was recorded, by step.",
		}, []string{"step"}),
		stockAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "stock_anomalies_total",
			Help:      "Products sold beyond their recorded stock.",
		}),
		receiptsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "receipts_issued_total",
			Help:      "Receipt links created.",
		}),
		receiptLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "receipt_lookups_total",
			Help:      "Public receipt resolutions, by result.",
		}, []string{"result"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pos",
			Name:      "commit_duration_seconds",
			Help:      "Time spent committing a sale.",
			Buckets:   prometheus.DefBuckets,
		}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pos",
			Name:      "report_duration_seconds",
			Help:      "Time spent building a sales report.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status class.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.salesCommitted,
		m.revenueCents,
		m.commitFailures,
		m.downstreamFailures,
		m.stockAnomalies,
		m.receiptsIssued,
		m.receiptLookups,
		m.commitDuration,
		m.reportDuration,
		m.httpRequests,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SaleCommitted(method string, totalCents int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.salesCommitted.WithLabelValues(method).Inc()
	if totalCents > 0 {
		m.revenueCents.WithLabelValues(method).Add(float64(totalCents))
	}
	m.commitDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CommitFailed(reason string) {
	if m == nil {
		return
	}
	m.commitFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) DownstreamFailed(step string) {
	if m == nil {
		return
	}
	m.downstreamFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) StockAnomalies(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stockAnomalies.Add(float64(n))
}

func (m *Metrics) ReceiptIssued() {
	if m == nil {
		return
	}
	m.receiptsIssued.Inc()
}

func (m *Metrics) ReceiptLookup(result string) {
	if m == nil {
		return
	}
	m.receiptLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ReportBuilt(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reportDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
