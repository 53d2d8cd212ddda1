package listing

import "sync"

// Sentinel tracks the visibility of the marker placed after the last rendered record and
// fires its callback once per hidden-to-visible transition. It knows nothing about fetch
// state; callers rely on Controller.LoadMore to drop requests while a fetch is in flight.
type Sentinel struct {
	mu       sync.Mutex
	visible  bool
	released bool
	onReveal func()
}

// NewSentinel returns a hidden sentinel that calls onReveal when it becomes visible.
func NewSentinel(onReveal func()) *Sentinel {
	return &Sentinel{onReveal: onReveal}
}

// Observe reports the marker's current visibility. It returns true when the callback ran.
func (s *Sentinel) Observe(visible bool) bool {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return false
	}
	fire := visible && !s.visible
	s.visible = visible
	s.mu.Unlock()
	if fire && s.onReveal != nil {
		s.onReveal()
	}
	return fire
}

// Release stops observation; later Observe calls are ignored.
func (s *Sentinel) Release() {
	s.mu.Lock()
	s.released = true
	s.visible = false
	s.mu.Unlock()
}
