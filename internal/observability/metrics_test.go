package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesAuthzAndAuditCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDenial("INSUFFICIENT_PERMISSIONS", "bookings:cancel")
	metrics.ObserveEntry("LOGIN", true)
	metrics.ObserveEntry("LOGIN", false)

	body := scrape(t, metrics)
	if !strings.Contains(body, `tripwell_authz_denials_total{code="INSUFFICIENT_PERMISSIONS",permission="bookings:cancel"} 1`) {
		t.Fatalf("expected denial counter, got: %s", body)
	}
	if !strings.Contains(body, `tripwell_audit_entries_total{action="LOGIN",result="dropped"} 1`) {
		t.Fatalf("expected dropped audit counter, got: %s", body)
	}
	if !strings.Contains(body, `tripwell_audit_entries_total{action="LOGIN",result="recorded"} 1`) {
		t.Fatalf("expected recorded audit counter, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "tripwell_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "tripwell_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDenial("AUTH_REQUIRED", "")
	metrics.ObserveEntry("LOGIN", true)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
