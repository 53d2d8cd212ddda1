package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/regwatch/regwatch/internal/listing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/{kind}/more")
	req := httptest.NewRequest(http.MethodGet, "/facilities/more", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `regwatch_http_requests_total{code="418",route="/{kind}/more"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `regwatch_http_request_duration_seconds_bucket{route="/{kind}/more"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestMetricsRecordListFetches(t *testing.T) {
	metrics := NewMetrics()
	var recorder listing.Recorder = metrics

	recorder.ObserveFetch("facilities", 40*time.Millisecond, nil)
	recorder.ObserveFetch("facilities", time.Second, &listing.FetchError{StatusCode: 503})
	recorder.ObserveFetch("facilities", time.Second, &listing.DecodeError{Err: errors.New("x")})
	recorder.ObserveFetch("inspections", time.Second, errors.New("dial tcp: refused"))
	recorder.ObserveStale("facilities")
	metrics.SetOpenViews(3)

	body := scrape(t, metrics)
	for _, want := range []string{
		`regwatch_list_fetches_total{list="facilities",outcome="ok"} 1`,
		`regwatch_list_fetches_total{list="facilities",outcome="http_503"} 1`,
		`regwatch_list_fetches_total{list="facilities",outcome="decode_error"} 1`,
		`regwatch_list_fetches_total{list="inspections",outcome="transport_error"} 1`,
		`regwatch_list_stale_responses_total{list="facilities"} 1`,
		`regwatch_list_views_open 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("x", time.Second, nil)
	m.ObserveStale("x")
	m.SetOpenViews(1)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
