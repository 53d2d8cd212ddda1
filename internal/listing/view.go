package listing

import (
	"sync"
	"time"
)

// DefaultSearchDelay is the quiet period applied to free-text search input.
const DefaultSearchDelay = 350 * time.Millisecond

// View wires search input, filter state and the scroll sentinel to one Controller:
// search text is debounced, any criteria change resets the controller and the sentinel
// turning visible asks for the next page.
type View[T any] struct {
	ctrl     *Controller[T]
	filters  *FilterStore
	search   *Debouncer[string]
	sentinel *Sentinel

	mu         sync.Mutex
	searchText string
	sort       Sort
	mounted    bool
}

// NewView builds a view around ctrl. A non-positive delay uses DefaultSearchDelay.
func NewView[T any](ctrl *Controller[T], searchDelay time.Duration) *View[T] {
	if searchDelay <= 0 {
		searchDelay = DefaultSearchDelay
	}
	v := &View[T]{ctrl: ctrl}
	v.filters = NewFilterStore(func(Filters) { v.criteriaChanged() })
	v.search = NewDebouncer(searchDelay, v.applySearch)
	v.sentinel = NewSentinel(func() { ctrl.LoadMore() })
	return v
}

// Mount sets the initial criteria and loads the first page, bypassing the debouncer.
func (v *View[T]) Mount(criteria Criteria) {
	v.mu.Lock()
	v.mounted = false
	v.mu.Unlock()

	values := make(map[string]FilterValue, criteria.Filters.Len())
	for _, key := range criteria.Filters.Keys() {
		raw, _ := criteria.Filters.Get(key)
		values[key] = Only(raw)
	}
	v.filters.Replace(values)

	v.mu.Lock()
	v.searchText = criteria.Search
	v.sort = criteria.Sort
	v.mounted = true
	v.mu.Unlock()
	v.reset()
}

// Search feeds free-text input through the debouncer. The channel reports whether this
// text was applied (true) or superseded by later input (false).
func (v *View[T]) Search(text string) <-chan bool {
	return v.search.Push(text)
}

// SetFilter constrains key, or clears it for AnyValue, and resets the list on change.
func (v *View[T]) SetFilter(key string, value FilterValue) {
	v.filters.Set(key, value)
}

// ClearFilters removes all filter constraints.
func (v *View[T]) ClearFilters() {
	v.filters.ClearAll()
}

// SetSort changes the ordering and resets the list on change.
func (v *View[T]) SetSort(sort Sort) {
	v.mu.Lock()
	if v.sort == sort {
		v.mu.Unlock()
		return
	}
	v.sort = sort
	v.mu.Unlock()
	v.criteriaChanged()
}

// Reveal reports whether the scroll sentinel is on screen.
func (v *View[T]) Reveal(visible bool) bool {
	return v.sentinel.Observe(visible)
}

// Criteria returns the criteria currently applied.
func (v *View[T]) Criteria() Criteria {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Criteria{Search: v.searchText, Filters: v.filters.Current(), Sort: v.sort}
}

// Filters returns the view's filter store.
func (v *View[T]) Filters() *FilterStore {
	return v.filters
}

// Controller returns the underlying controller.
func (v *View[T]) Controller() *Controller[T] {
	return v.ctrl
}

// Close stops pending search input, releases the sentinel and closes the controller.
func (v *View[T]) Close() {
	v.search.Stop()
	v.sentinel.Release()
	v.ctrl.Close()
}

func (v *View[T]) applySearch(text string) {
	v.mu.Lock()
	if v.searchText == text {
		v.mu.Unlock()
		return
	}
	v.searchText = text
	v.mu.Unlock()
	v.criteriaChanged()
}

func (v *View[T]) criteriaChanged() {
	v.mu.Lock()
	mounted := v.mounted
	v.mu.Unlock()
	if !mounted {
		return
	}
	v.reset()
}

func (v *View[T]) reset() {
	v.sentinel.Observe(false)
	v.ctrl.Reset(v.Criteria())
}
