package compliancehttp

import (
	"context"
	"net/url"
	"strings"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
)

const (
	filterPrefix = "f."
	maxSearchLen = 200
	paramSearch  = "q"
	paramSort    = "sort"
	paramDir     = "dir"
	paramAfter   = "after"
	paramGen     = "gen"
	paramView    = "view"
	paramStart   = "start"
	paramLength  = "length"
	maxAPILength = 200
)

// parseCriteria reads search, filters and sort from query parameters. Filter values
// outside a known definition are dropped; filters without a parameter take the
// definition's default.
func parseCriteria(kind compliance.Kind, values url.Values, defs []listing.FilterDefinition) listing.Criteria {
	search := strings.TrimSpace(values.Get(paramSearch))
	if len([]rune(search)) > maxSearchLen {
		search = string([]rune(search)[:maxSearchLen])
	}

	known := make(map[string]listing.FilterDefinition, len(defs))
	for _, d := range defs {
		known[d.Key] = d
	}
	filters := make(map[string]string)
	for param, raw := range values {
		key, ok := strings.CutPrefix(param, filterPrefix)
		if !ok || key == "" || len(raw) == 0 {
			continue
		}
		value, set := listing.ParseFilterValue(raw[0]).Value()
		if !set {
			continue
		}
		if def, ok := known[key]; ok && len(def.AllowedValues) > 0 && !def.Allows(value) {
			continue
		}
		filters[key] = value
	}
	for _, d := range defs {
		if _, given := values[filterPrefix+d.Key]; given {
			continue
		}
		if value, set := listing.ParseFilterValue(d.DefaultValue).Value(); set {
			filters[d.Key] = value
		}
	}

	sort := kind.DefaultSort
	if field := strings.TrimSpace(values.Get(paramSort)); field != "" && kind.SortAllowed(field) {
		sort = listing.Sort{Field: field, Direction: listing.ParseDirection(values.Get(paramDir))}
	}
	return listing.Criteria{Search: search, Filters: listing.NewFilters(filters), Sort: sort}
}

// criteriaQuery renders criteria back into query parameters, overriding the sort.
func criteriaQuery(c listing.Criteria, sort listing.Sort) url.Values {
	v := url.Values{}
	if c.Search != "" {
		v.Set(paramSearch, c.Search)
	}
	for _, key := range c.Filters.Keys() {
		value, _ := c.Filters.Get(key)
		v.Set(filterPrefix+key, value)
	}
	if !sort.IsZero() {
		v.Set(paramSort, sort.Field)
		v.Set(paramDir, string(sort.Direction))
	}
	return v
}

// withFixedFilters pins filters that the caller cannot change, such as the FEI of an
// embedded list.
func withFixedFilters[T any](fetcher listing.Fetcher[T], fixed map[string]string) listing.Fetcher[T] {
	if len(fixed) == 0 {
		return fetcher
	}
	return listing.FetcherFunc[T](func(ctx context.Context, q listing.Query) (listing.Page[T], error) {
		merged := q.Filters.Map()
		for k, v := range fixed {
			merged[k] = v
		}
		q.Criteria.Filters = listing.NewFilters(merged)
		return fetcher.Fetch(ctx, q)
	})
}
