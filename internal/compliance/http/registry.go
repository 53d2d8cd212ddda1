package compliancehttp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
)

// ListView is the list state kept for one open browser page.
type ListView = listing.View[compliance.Record]

// maxViewsPerList bounds how many pages of one list a session keeps open at once.
const maxViewsPerList = 8

type registryEntry struct {
	scope    string
	view     *ListView
	lastUsed time.Time
}

// Registry holds the open list views of every session. A view lives from the page load
// that mounts it until the page releases it or it sits idle longer than the TTL. Every
// view has its own id, so two pages of the same list never share state.
type Registry struct {
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
	onChange func(open int)

	mu    sync.Mutex
	views map[string]*registryEntry
}

// NewRegistry builds a registry. onChange, when set, receives the open view count.
func NewRegistry(ttl time.Duration, onChange func(open int)) *Registry {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Registry{
		ttl:      ttl,
		now:      time.Now,
		newID:    uuid.NewString,
		onChange: onChange,
		views:    make(map[string]*registryEntry),
	}
}

func registryScope(sessionID, list string) string {
	return sessionID + "|" + list
}

func registryKey(sessionID, list, id string) string {
	return registryScope(sessionID, list) + "|" + id
}

// Put stores view under the session and list and returns the id the page addresses it
// by. When the session already holds maxViewsPerList views of list, the least recently
// used one is closed.
func (r *Registry) Put(sessionID, list string, view *ListView) string {
	scope := registryScope(sessionID, list)

	r.mu.Lock()
	id := r.newID()
	key := registryKey(sessionID, list, id)
	r.views[key] = &registryEntry{scope: scope, view: view, lastUsed: r.now()}
	evicted := r.evictLocked(scope, key)
	open := len(r.views)
	r.mu.Unlock()

	for _, v := range evicted {
		v.Close()
	}
	r.report(open)
	return id
}

func (r *Registry) evictLocked(scope, keep string) []*ListView {
	var evicted []*ListView
	for {
		count := 0
		var oldestKey string
		var oldest *registryEntry
		for key, entry := range r.views {
			if entry.scope != scope {
				continue
			}
			count++
			if key != keep && (oldest == nil || entry.lastUsed.Before(oldest.lastUsed)) {
				oldestKey, oldest = key, entry
			}
		}
		if count <= maxViewsPerList || oldest == nil {
			return evicted
		}
		delete(r.views, oldestKey)
		evicted = append(evicted, oldest.view)
	}
}

// Get returns the session's view of list with the given id and marks it used.
func (r *Registry) Get(sessionID, list, id string) (*ListView, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.views[registryKey(sessionID, list, id)]
	if !ok {
		return nil, false
	}
	entry.lastUsed = r.now()
	return entry.view, true
}

// Release closes and forgets the view with the given id. Views of other pages, including
// newer pages of the same list, are left alone.
func (r *Registry) Release(sessionID, list, id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	key := registryKey(sessionID, list, id)
	entry, ok := r.views[key]
	delete(r.views, key)
	open := len(r.views)
	r.mu.Unlock()

	if !ok {
		return false
	}
	entry.view.Close()
	r.report(open)
	return true
}

// Sweep closes views idle for longer than the TTL and returns how many it closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var expired []*ListView

	r.mu.Lock()
	for key, entry := range r.views {
		if entry.lastUsed.Before(cutoff) {
			expired = append(expired, entry.view)
			delete(r.views, key)
		}
	}
	open := len(r.views)
	r.mu.Unlock()

	for _, v := range expired {
		v.Close()
	}
	if len(expired) > 0 {
		r.report(open)
	}
	return len(expired)
}

// Len returns the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Run sweeps periodically until ctx is done, then closes every view.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close closes every view.
func (r *Registry) Close() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range views {
		entry.view.Close()
	}
	r.report(0)
}

func (r *Registry) report(open int) {
	if r.onChange != nil {
		r.onChange(open)
	}
}
