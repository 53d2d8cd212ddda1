package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	require.NoError(t, m.Track("filters:warmup").End(nil))
	boom := errors.New("backend down")
	assert.ErrorIs(t, m.Track("filters:warmup").End(boom), boom)
	m.AddWarmed("filters", 5)
	m.AddWarmed("filters", 0)

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`regwatch_jobs_total{job="filters:warmup",status="success"} 1`,
		`regwatch_jobs_total{job="filters:warmup",status="failure"} 1`,
		`regwatch_jobs_failures_total{job="filters:warmup"} 1`,
		`regwatch_cache_entries_warmed_total{cache="filters"} 5`,
	} {
		assert.True(t, strings.Contains(body, want), want)
	}
}

func TestNilTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("x")
	assert.ErrorIs(t, m.Track("job").End(boom), boom)
	m.AddWarmed("filters", 1)
}
