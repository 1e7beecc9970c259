package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.SaleCommitted("cash", 5600, 20*time.Millisecond)
	m.SaleCommitted("cash", 1500, 10*time.Millisecond)
	m.SaleCommitted("card", 0, time.Millisecond)
	m.DownstreamFailed("items")
	m.StockAnomalies(2)
	m.ReceiptLookup("invalid")
	m.HTTPRequest("/healthz", 200)
	m.HTTPRequest("/healthz", 503)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.salesCommitted.WithLabelValues("cash")))
	assert.Equal(t, 7100.0, testutil.ToFloat64(m.revenueCents.WithLabelValues("cash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downstreamFailures.WithLabelValues("items")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stockAnomalies))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.receiptLookups.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/healthz", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.commitDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SaleCommitted("cash", 1, time.Second)
	m.CommitFailed("validation")
	m.ReceiptIssued()
	m.ReportBuilt(time.Second)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.ReceiptIssued()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pos_receipts_issued_total 1")
}
