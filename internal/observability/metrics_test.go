package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCheckOutcomes(t *testing.T) {
	m := NewMetrics()
	m.ObserveCheck("permission", true)
	m.ObserveCheck("permission", true)
	m.ObserveCheck("permission", false)

	allowed := testutil.ToFloat64(m.checksTotal.WithLabelValues("permission", "allowed"))
	denied := testutil.ToFloat64(m.checksTotal.WithLabelValues("permission", "denied"))
	if allowed != 2 || denied != 1 {
		t.Fatalf("unexpected counts: allowed=%v denied=%v", allowed, denied)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	count := testutil.ToFloat64(m.requestsTotal.WithLabelValues("unknown", "418"))
	if count != 1 {
		t.Fatalf("expected one recorded request, got %v", count)
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCheck("role", true)
	m.ObserveMutation("grant")
	m.ObserveExpirations(3)
	m.SetOutboxPending(1)
	if m.Handler() == nil {
		t.Fatal("nil metrics must still return a handler")
	}
}
