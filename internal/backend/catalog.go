package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
	"github.com/regwatch/regwatch/internal/platform/cache"
)

// ErrFacilityNotFound is returned when no facility matches an FEI number.
var ErrFacilityNotFound = errors.New("backend: facility not found")

// Catalog serves slow-changing reference data: filter definitions and dashboard
// aggregates. Results are cached in Redis and concurrent misses share one request.
// List pages never pass through here.
type Catalog struct {
	client *Client
	cache  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
}

// NewCatalog wires a catalog. client should carry service credentials since cached
// entries are shared by every user.
func NewCatalog(client *Client, store *cache.Versioned, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{client: client, cache: store, logger: logger}
}

// Cache exposes the versioned cache for invalidation.
func (c *Catalog) Cache() *cache.Versioned {
	return c.cache
}

// Filters returns the filter dropdowns for a list endpoint.
func (c *Catalog) Filters(ctx context.Context, endpoint string) ([]listing.FilterDefinition, error) {
	var defs []listing.FilterDefinition
	err := c.cached(ctx, &defs, func(ctx context.Context) (any, error) {
		var loaded []listing.FilterDefinition
		if err := c.client.GetJSON(ctx, "filters/"+endpoint, nil, &loaded); err != nil {
			return nil, err
		}
		return sanitizeDefinitions(loaded), nil
	}, "filters", endpoint)
	if err != nil {
		return nil, fmt.Errorf("filters for %s: %w", endpoint, err)
	}
	return defs, nil
}

// Summary returns the dashboard headline counts.
func (c *Catalog) Summary(ctx context.Context) (compliance.Summary, error) {
	var summary compliance.Summary
	err := c.cached(ctx, &summary, func(ctx context.Context) (any, error) {
		body, err := c.client.Get(ctx, "dashboard/summary", nil)
		if err != nil {
			return nil, err
		}
		loaded, err := compliance.DecodeOne[compliance.Summary](body)
		if err != nil {
			return nil, &listing.DecodeError{Err: err}
		}
		return loaded, nil
	}, "dashboard", "summary")
	return summary, err
}

// InspectionsByYear returns inspection counts per fiscal year in ascending year order.
func (c *Catalog) InspectionsByYear(ctx context.Context) ([]compliance.YearCount, error) {
	var counts []compliance.YearCount
	err := c.cached(ctx, &counts, func(ctx context.Context) (any, error) {
		return loadList[compliance.YearCount](ctx, c.client, "dashboard/inspections_by_year")
	}, "dashboard", "inspections_by_year")
	return counts, err
}

// CitationsBySystem returns Form 483 citation counts per six-systems code.
func (c *Catalog) CitationsBySystem(ctx context.Context) ([]compliance.SystemCitations, error) {
	var counts []compliance.SystemCitations
	err := c.cached(ctx, &counts, func(ctx context.Context) (any, error) {
		return loadList[compliance.SystemCitations](ctx, c.client, "dashboard/citations_by_system")
	}, "dashboard", "citations_by_system")
	return counts, err
}

// Invalidate orphans every cached entry so the next read reloads from the backend.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if _, err := c.cache.Bump(ctx); err != nil {
		return fmt.Errorf("bump catalog cache: %w", err)
	}
	return nil
}

func (c *Catalog) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := c.cache.Key(ctx, parts...)
	if err != nil {
		c.logger.Warn("catalog cache unavailable", slog.Any("error", err))
		key = strings.Join(parts, ":")
	}
	load := func(ctx context.Context) (any, error) {
		v, err, _ := c.group.Do(key, func() (any, error) {
			return loader(ctx)
		})
		return v, err
	}
	return c.cache.FetchJSON(ctx, key, dest, load)
}

func loadList[T any](ctx context.Context, client *Client, endpoint string) ([]T, error) {
	body, err := client.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	rows, err := compliance.DecodeList[T](body)
	if err != nil {
		return nil, &listing.DecodeError{Err: err}
	}
	return rows, nil
}

// sanitizeDefinitions drops definitions without a key and the "all" pseudo-value.
func sanitizeDefinitions(defs []listing.FilterDefinition) []listing.FilterDefinition {
	out := make([]listing.FilterDefinition, 0, len(defs))
	for _, def := range defs {
		if strings.TrimSpace(def.Key) == "" {
			continue
		}
		values := make([]string, 0, len(def.AllowedValues))
		for _, v := range def.AllowedValues {
			if _, ok := listing.ParseFilterValue(v).Value(); ok {
				values = append(values, v)
			}
		}
		def.AllowedValues = values
		if def.Label == "" {
			def.Label = def.Key
		}
		if _, ok := listing.ParseFilterValue(def.DefaultValue).Value(); !ok {
			def.DefaultValue = ""
		}
		out = append(out, def)
	}
	return out
}

// FetchFacility loads one facility by FEI number using the client's credentials.
func FetchFacility(ctx context.Context, client *Client, fei string) (compliance.Facility, error) {
	params := url.Values{}
	params.Set("fei_number", "eq."+fei)
	params.Set("limit", "1")
	body, err := client.Get(ctx, "facilities", params)
	if err != nil {
		return compliance.Facility{}, err
	}
	rows, err := compliance.DecodeList[compliance.Facility](body)
	if err != nil {
		return compliance.Facility{}, &listing.DecodeError{Err: err}
	}
	if len(rows) == 0 {
		return compliance.Facility{}, fmt.Errorf("%w: %s", ErrFacilityNotFound, fei)
	}
	return rows[0], nil
}
