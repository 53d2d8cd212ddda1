package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/regwatch/regwatch/internal/compliance"
	jobmetrics "github.com/regwatch/regwatch/internal/jobs"
	"github.com/regwatch/regwatch/internal/listing"
)

// ErrUnknownTask is returned for task types the worker does not handle.
var ErrUnknownTask = errors.New("jobs: unknown task type")

// Catalog is the cached reference data the warmup jobs refresh.
type Catalog interface {
	Invalidate(ctx context.Context) error
	Filters(ctx context.Context, endpoint string) ([]listing.FilterDefinition, error)
	Summary(ctx context.Context) (compliance.Summary, error)
	InspectionsByYear(ctx context.Context) ([]compliance.YearCount, error)
	CitationsBySystem(ctx context.Context) ([]compliance.SystemCitations, error)
}

// WarmupJob keeps the catalog cache hot so list pages mount without waiting on the
// filters endpoint.
type WarmupJob struct {
	Catalog Catalog
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewWarmupJob wires the warmup handlers.
func NewWarmupJob(catalog Catalog, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{Catalog: catalog, Logger: logger, Metrics: metrics}
}

// Handlers returns the asynq registrations for both warmup tasks.
func (j *WarmupJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskFiltersWarmup, Handler: j.HandleFilters},
		{Type: TaskDashboardWarmup, Handler: j.HandleDashboard},
	}
}

// HandleFilters reloads filter definitions for every list kind.
func (j *WarmupJob) HandleFilters(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Catalog == nil {
		return errors.New("filters warmup: handler not configured")
	}
	var payload FiltersWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("filters warmup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.Metrics.Track(TaskFiltersWarmup)
	defer func() { err = tracker.End(err) }()

	if payload.Invalidate {
		if err := j.Catalog.Invalidate(ctx); err != nil {
			return err
		}
	}
	endpoints := payload.Endpoints
	if len(endpoints) == 0 {
		for _, kind := range compliance.Kinds() {
			endpoints = append(endpoints, kind.Endpoint)
		}
	}

	warmed := 0
	var errs []error
	for _, endpoint := range endpoints {
		defs, err := j.Catalog.Filters(ctx, endpoint)
		if err != nil {
			j.logger().Warn("warm filters", slog.String("endpoint", endpoint), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		warmed++
		j.logger().Debug("warmed filters", slog.String("endpoint", endpoint), slog.Int("definitions", len(defs)))
	}
	j.Metrics.AddWarmed("filters", warmed)
	j.logger().Info("filters warmup finished", slog.Int("warmed", warmed), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// HandleDashboard reloads the dashboard aggregates.
func (j *WarmupJob) HandleDashboard(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Catalog == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskDashboardWarmup)
	defer func() { err = tracker.End(err) }()

	var errs []error
	if _, err := j.Catalog.Summary(ctx); err != nil {
		errs = append(errs, fmt.Errorf("summary: %w", err))
	}
	if _, err := j.Catalog.InspectionsByYear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("inspections by year: %w", err))
	}
	if _, err := j.Catalog.CitationsBySystem(ctx); err != nil {
		errs = append(errs, fmt.Errorf("citations by system: %w", err))
	}
	j.Metrics.AddWarmed("dashboard", 3-len(errs))
	if len(errs) > 0 {
		j.logger().Warn("dashboard warmup incomplete", slog.Int("failed", len(errs)))
	}
	return errors.Join(errs...)
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
