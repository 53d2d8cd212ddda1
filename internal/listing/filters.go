package listing

import (
	"strings"
	"sync"
)

// anySentinel is the dropdown value that means "no constraint".
const anySentinel = "all"

// FilterValue is an optional filter value. The zero value means unconstrained.
type FilterValue struct {
	value string
	set   bool
}

// AnyValue returns the unconstrained filter value.
func AnyValue() FilterValue {
	return FilterValue{}
}

// Only constrains a filter to v. An empty v is unconstrained.
func Only(v string) FilterValue {
	if v == "" {
		return FilterValue{}
	}
	return FilterValue{value: v, set: true}
}

// ParseFilterValue maps form input to a FilterValue; "all" and blank mean unconstrained.
func ParseFilterValue(raw string) FilterValue {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, anySentinel) {
		return AnyValue()
	}
	return Only(trimmed)
}

// Value returns the constrained value and whether one is set.
func (v FilterValue) Value() (string, bool) {
	return v.value, v.set
}

// FilterDefinition describes the legal values of one filter dropdown.
type FilterDefinition struct {
	Key           string   `json:"key"`
	Label         string   `json:"label"`
	AllowedValues []string `json:"values"`
	DefaultValue  string   `json:"default"`
}

// Allows reports whether value is one of the definition's allowed values.
func (d FilterDefinition) Allows(value string) bool {
	for _, allowed := range d.AllowedValues {
		if allowed == value {
			return true
		}
	}
	return false
}

// FilterStore holds the selected filters. Keys are not validated against definitions;
// the backend ignores unknown keys.
type FilterStore struct {
	mu       sync.Mutex
	values   map[string]string
	onChange func(Filters)
}

// NewFilterStore returns an empty store that calls onChange after every effective change.
func NewFilterStore(onChange func(Filters)) *FilterStore {
	return &FilterStore{values: make(map[string]string), onChange: onChange}
}

// Set constrains key to value, or removes the constraint when value is unconstrained.
func (s *FilterStore) Set(key string, value FilterValue) {
	s.mu.Lock()
	changed := s.applyLocked(key, value)
	snapshot := NewFilters(s.values)
	s.mu.Unlock()
	if changed {
		s.notify(snapshot)
	}
}

// Replace swaps the whole mapping with a single change notification.
func (s *FilterStore) Replace(values map[string]FilterValue) {
	next := make(map[string]string, len(values))
	for k, v := range values {
		if raw, ok := v.Value(); ok && k != "" {
			next[k] = raw
		}
	}
	s.mu.Lock()
	changed := !NewFilters(s.values).Equal(NewFilters(next))
	s.values = next
	snapshot := NewFilters(s.values)
	s.mu.Unlock()
	if changed {
		s.notify(snapshot)
	}
}

// ClearAll empties the mapping.
func (s *FilterStore) ClearAll() {
	s.mu.Lock()
	changed := len(s.values) > 0
	s.values = make(map[string]string)
	s.mu.Unlock()
	if changed {
		s.notify(Filters{})
	}
}

// Current returns the immutable snapshot of active filters.
func (s *FilterStore) Current() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewFilters(s.values)
}

func (s *FilterStore) applyLocked(key string, value FilterValue) bool {
	if key == "" {
		return false
	}
	raw, ok := value.Value()
	current, exists := s.values[key]
	if !ok {
		if !exists {
			return false
		}
		delete(s.values, key)
		return true
	}
	if exists && current == raw {
		return false
	}
	s.values[key] = raw
	return true
}

func (s *FilterStore) notify(snapshot Filters) {
	if s.onChange != nil {
		s.onChange(snapshot)
	}
}
