package listing

import (
	"sync"
	"time"
)

// timer is the subset of *time.Timer the debouncer needs.
type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Debouncer delays values until the input has been quiet for the configured delay.
// Only the last value of a burst reaches the emit callback.
type Debouncer[T any] struct {
	delay time.Duration
	emit  func(T)
	after afterFunc

	mu      sync.Mutex
	seq     uint64
	pending *pendingValue[T]
	stopped bool
}

type pendingValue[T any] struct {
	seq   uint64
	value T
	timer timer
	done  chan bool
}

// NewDebouncer returns a debouncer that calls emit after delay of inactivity.
func NewDebouncer[T any](delay time.Duration, emit func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, emit: emit, after: realAfterFunc}
}

// Push records a new value and restarts the quiet period. The returned channel receives
// true once the value is emitted, or false when a newer value or Stop supersedes it.
func (d *Debouncer[T]) Push(value T) <-chan bool {
	done := make(chan bool, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		done <- false
		return done
	}
	d.cancelPendingLocked()
	d.seq++
	seq := d.seq
	p := &pendingValue[T]{seq: seq, value: value, done: done}
	if d.delay <= 0 {
		d.pending = p
		go d.fire(seq)
		return done
	}
	p.timer = d.after(d.delay, func() { d.fire(seq) })
	d.pending = p
	return done
}

// Flush emits the pending value immediately, if any.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	p := d.pending
	d.mu.Unlock()
	if p != nil {
		d.fire(p.seq)
	}
}

// Stop cancels the pending emission and makes later pushes no-ops.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelPendingLocked()
	d.stopped = true
}

func (d *Debouncer[T]) cancelPendingLocked() {
	if d.pending == nil {
		return
	}
	if d.pending.timer != nil {
		d.pending.timer.Stop()
	}
	d.pending.done <- false
	d.pending = nil
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	p := d.pending
	if p == nil || p.seq != seq {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()

	if d.emit != nil {
		d.emit(p.value)
	}
	p.done <- true
}
