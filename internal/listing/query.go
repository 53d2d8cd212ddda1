// Package listing implements incremental list loading: debounced search, filter state,
// paginated fetches and an accumulation controller driven by a scroll sentinel.
package listing

import (
	"sort"
	"strings"
)

// Direction is the sort direction sent to the backend.
type Direction string

const (
	// Asc sorts ascending.
	Asc Direction = "asc"
	// Desc sorts descending.
	Desc Direction = "desc"
)

// ParseDirection normalises user input, defaulting to Asc.
func ParseDirection(raw string) Direction {
	if strings.EqualFold(strings.TrimSpace(raw), string(Desc)) {
		return Desc
	}
	return Asc
}

// Sort names the sort field and direction. A zero Sort leaves ordering to the backend.
type Sort struct {
	Field     string
	Direction Direction
}

// IsZero reports whether no sort field is set.
func (s Sort) IsZero() bool {
	return strings.TrimSpace(s.Field) == ""
}

// Filters is an immutable snapshot of active filter key/value pairs.
type Filters struct {
	values map[string]string
}

// NewFilters copies the provided mapping into a snapshot, dropping empty values.
func NewFilters(values map[string]string) Filters {
	if len(values) == 0 {
		return Filters{}
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		if k == "" || v == "" {
			continue
		}
		copied[k] = v
	}
	return Filters{values: copied}
}

// Get returns the value for key and whether the key is constrained.
func (f Filters) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Len returns the number of active filters.
func (f Filters) Len() int {
	return len(f.values)
}

// Keys returns the active filter keys in lexical order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the snapshot as a plain map.
func (f Filters) Map() map[string]string {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Equal reports whether both snapshots constrain the same keys to the same values.
func (f Filters) Equal(other Filters) bool {
	if len(f.values) != len(other.values) {
		return false
	}
	for k, v := range f.values {
		if ov, ok := other.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Criteria is the user-driven portion of a query. Any change to it resets the list.
type Criteria struct {
	Search  string
	Filters Filters
	Sort    Sort
}

// Equal reports whether two criteria would produce the same result set.
func (c Criteria) Equal(other Criteria) bool {
	return c.Search == other.Search && c.Sort == other.Sort && c.Filters.Equal(other.Filters)
}

// Query is one page request. Offset is a multiple of PageSize when issued by a Controller.
type Query struct {
	Criteria
	Offset   int
	PageSize int
}

// Page is one batch of records returned by a single backend call.
type Page[T any] struct {
	Records         []T
	RequestedOffset int
	ReturnedCount   int
}

// NewPage builds a page for records fetched at offset.
func NewPage[T any](records []T, offset int) Page[T] {
	return Page[T]{Records: records, RequestedOffset: offset, ReturnedCount: len(records)}
}

// HasMore reports whether a full page came back, which signals further pages may exist.
func (p Page[T]) HasMore(pageSize int) bool {
	return pageSize > 0 && p.ReturnedCount == pageSize
}
