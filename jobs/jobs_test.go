package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
)

type fakeCatalog struct {
	invalidated int
	endpoints   []string
	failFilters map[string]bool
	summaryErr  error
}

func (f *fakeCatalog) Invalidate(context.Context) error {
	f.invalidated++
	return nil
}

func (f *fakeCatalog) Filters(_ context.Context, endpoint string) ([]listing.FilterDefinition, error) {
	f.endpoints = append(f.endpoints, endpoint)
	if f.failFilters[endpoint] {
		return nil, &listing.FetchError{StatusCode: 500}
	}
	return []listing.FilterDefinition{{Key: "state"}}, nil
}

func (f *fakeCatalog) Summary(context.Context) (compliance.Summary, error) {
	return compliance.Summary{}, f.summaryErr
}

func (f *fakeCatalog) InspectionsByYear(context.Context) ([]compliance.YearCount, error) {
	return nil, nil
}

func (f *fakeCatalog) CitationsBySystem(context.Context) ([]compliance.SystemCitations, error) {
	return nil, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFiltersWarmupCoversEveryKind(t *testing.T) {
	catalog := &fakeCatalog{}
	job := NewWarmupJob(catalog, quietLogger(), nil)

	task, err := NewTask(TaskFiltersWarmup)
	require.NoError(t, err)
	require.NoError(t, job.HandleFilters(context.Background(), task))

	assert.Equal(t, 1, catalog.invalidated)
	assert.Len(t, catalog.endpoints, len(compliance.Kinds()))
}

func TestFiltersWarmupReportsPartialFailure(t *testing.T) {
	catalog := &fakeCatalog{failFilters: map[string]bool{"inspections": true}}
	job := NewWarmupJob(catalog, quietLogger(), nil)

	task, err := NewFiltersWarmupTask(FiltersWarmupPayload{Endpoints: []string{"facilities", "inspections"}})
	require.NoError(t, err)
	err = job.HandleFilters(context.Background(), task)

	var fe *listing.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"facilities", "inspections"}, catalog.endpoints)
	assert.Zero(t, catalog.invalidated)
}

func TestFiltersWarmupSkipsRetryOnBadPayload(t *testing.T) {
	job := NewWarmupJob(&fakeCatalog{}, quietLogger(), nil)
	err := job.HandleFilters(context.Background(), asynq.NewTask(TaskFiltersWarmup, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDashboardWarmup(t *testing.T) {
	boom := errors.New("backend down")
	job := NewWarmupJob(&fakeCatalog{summaryErr: boom}, quietLogger(), nil)
	task, err := NewTask(TaskDashboardWarmup)
	require.NoError(t, err)
	assert.ErrorIs(t, job.HandleDashboard(context.Background(), task), boom)

	job = NewWarmupJob(&fakeCatalog{}, quietLogger(), nil)
	assert.NoError(t, job.HandleDashboard(context.Background(), task))
}

func TestNewTaskRejectsUnknownType(t *testing.T) {
	_, err := NewTask("mail:send")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, http.StatusOK, 4},
		{"redis down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, quietLogger()).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.pending, body.Pending)
		})
	}
}
