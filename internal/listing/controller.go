package listing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPageSize is the page length used when none is configured.
const DefaultPageSize = 20

// Phase is the controller's position in its loading lifecycle.
type Phase int

const (
	// PhaseIdle means nothing has been requested yet.
	PhaseIdle Phase = iota
	// PhaseLoadingFirstPage means the first page of the current criteria is in flight.
	PhaseLoadingFirstPage
	// PhaseReady means the last fetch succeeded; HasMore tells whether more pages exist.
	PhaseReady
	// PhaseLoadingMore means a follow-up page is in flight.
	PhaseLoadingMore
	// PhaseErrored means the last fetch failed. Only a reset recovers.
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoadingFirstPage:
		return "loading_first_page"
	case PhaseReady:
		return "ready"
	case PhaseLoadingMore:
		return "loading_more"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// KeyFunc returns the primary key of a record.
type KeyFunc[T any] func(T) string

// Recorder receives fetch instrumentation.
type Recorder interface {
	ObserveFetch(list string, duration time.Duration, err error)
	ObserveStale(list string)
}

// Options configures a Controller.
type Options struct {
	// Name labels logs and metrics.
	Name     string
	PageSize int
	// MaxRecords stops pagination once this many records are accumulated. Zero means unbounded.
	MaxRecords int
	Logger     *slog.Logger
	Recorder   Recorder
}

// State is a snapshot of a controller. Records is a copy owned by the caller.
type State[T any] struct {
	Phase      Phase
	Criteria   Criteria
	Records    []T
	Err        error
	HasMore    bool
	NextOffset int
	Generation uint64
	// Version increases with every state change. Subscribers may receive snapshots out of
	// order and should ignore one whose Version is not above the last they kept.
	Version uint64
}

// Loading reports whether a fetch is in flight.
func (s State[T]) Loading() bool {
	return s.Phase == PhaseLoadingFirstPage || s.Phase == PhaseLoadingMore
}

// Controller accumulates pages for one list view. At most one fetch is in flight; results
// that arrive for a superseded request are discarded.
type Controller[T any] struct {
	fetcher Fetcher[T]
	key     KeyFunc[T]
	opts    Options
	base    context.Context
	stop    context.CancelFunc

	mu          sync.Mutex
	phase       Phase
	criteria    Criteria
	records     []T
	seen        map[string]struct{}
	err         error
	hasMore     bool
	nextOffset  int
	generation  uint64
	version     uint64
	fetchSeq    uint64
	inflight    uint64
	cancelFetch context.CancelFunc
	idle        chan struct{}
	idleClosed  bool
	subscribers []func(State[T])
	closed      bool
}

// NewController wires a fetcher and key function into an idle controller.
func NewController[T any](fetcher Fetcher[T], key KeyFunc[T], opts Options) *Controller[T] {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	base, stop := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Controller[T]{
		fetcher:    fetcher,
		key:        key,
		opts:       opts,
		base:       base,
		stop:       stop,
		seen:       make(map[string]struct{}),
		idle:       idle,
		idleClosed: true,
	}
}

// PageSize returns the configured page length.
func (c *Controller[T]) PageSize() int {
	return c.opts.PageSize
}

// Subscribe registers fn to receive a snapshot after every state change.
func (c *Controller[T]) Subscribe(fn func(State[T])) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.mu.Unlock()
}

// Reset discards accumulated records and loads the first page for criteria.
func (c *Controller[T]) Reset(criteria Criteria) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	c.generation++
	c.criteria = criteria
	c.records = nil
	c.seen = make(map[string]struct{})
	c.err = nil
	c.hasMore = true
	c.nextOffset = 0
	c.phase = PhaseLoadingFirstPage
	c.dispatchLocked(0)
	snapshot, subs := c.publishLocked()
	c.mu.Unlock()
	notify(subs, snapshot)
}

// LoadMore requests the next page. It is a no-op, returning false, unless the controller
// is ready, more pages exist and no fetch is in flight.
func (c *Controller[T]) LoadMore() bool {
	c.mu.Lock()
	if c.closed || c.phase != PhaseReady || !c.hasMore || c.inflight != 0 {
		c.mu.Unlock()
		return false
	}
	c.phase = PhaseLoadingMore
	c.dispatchLocked(c.nextOffset)
	snapshot, subs := c.publishLocked()
	c.mu.Unlock()
	notify(subs, snapshot)
	return true
}

// State returns a snapshot of the controller.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until no fetch is in flight or ctx is done.
func (c *Controller[T]) Wait(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight work. Later calls become no-ops.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.inflight = 0
	c.cancelFetch = nil
	c.markIdleLocked()
	c.mu.Unlock()
	c.stop()
}

func (c *Controller[T]) dispatchLocked(offset int) {
	c.fetchSeq++
	seq := c.fetchSeq
	c.inflight = seq
	query := Query{Criteria: c.criteria, Offset: offset, PageSize: c.opts.PageSize}
	ctx, cancel := context.WithCancel(c.base)
	c.cancelFetch = cancel
	if c.idleClosed {
		c.idle = make(chan struct{})
		c.idleClosed = false
	}
	go c.run(ctx, cancel, seq, query)
}

func (c *Controller[T]) run(ctx context.Context, cancel context.CancelFunc, seq uint64, query Query) {
	defer cancel()
	start := time.Now()
	page, err := c.fetcher.Fetch(ctx, query)
	c.settle(seq, query, page, err, time.Since(start))
}

func (c *Controller[T]) settle(seq uint64, query Query, page Page[T], err error, took time.Duration) {
	c.mu.Lock()
	if c.closed || seq != c.inflight {
		c.mu.Unlock()
		c.logger().Debug("discard stale page",
			slog.String("list", c.opts.Name),
			slog.Int("offset", query.Offset),
			slog.String("search", query.Search))
		if c.opts.Recorder != nil {
			c.opts.Recorder.ObserveStale(c.opts.Name)
		}
		return
	}
	c.inflight = 0
	c.cancelFetch = nil

	if err != nil {
		c.phase = PhaseErrored
		c.err = err
		c.hasMore = false
	} else {
		if c.phase == PhaseLoadingFirstPage {
			c.records = nil
			c.seen = make(map[string]struct{})
		}
		c.appendLocked(page.Records)
		c.nextOffset = query.Offset + page.ReturnedCount
		c.hasMore = page.HasMore(query.PageSize)
		if c.opts.MaxRecords > 0 && len(c.records) >= c.opts.MaxRecords {
			c.hasMore = false
		}
		c.phase = PhaseReady
	}
	c.markIdleLocked()
	snapshot, subs := c.publishLocked()
	c.mu.Unlock()

	if c.opts.Recorder != nil {
		c.opts.Recorder.ObserveFetch(c.opts.Name, took, err)
	}
	if err != nil {
		c.logger().Warn("list fetch failed",
			slog.String("list", c.opts.Name),
			slog.Int("offset", query.Offset),
			slog.Any("error", err))
	}
	notify(subs, snapshot)
}

func (c *Controller[T]) appendLocked(records []T) {
	for _, record := range records {
		if c.key != nil {
			k := c.key(record)
			if _, dup := c.seen[k]; dup {
				continue
			}
			c.seen[k] = struct{}{}
		}
		c.records = append(c.records, record)
	}
}

func (c *Controller[T]) markIdleLocked() {
	if !c.idleClosed {
		close(c.idle)
		c.idleClosed = true
	}
}

func (c *Controller[T]) snapshotLocked() State[T] {
	records := make([]T, len(c.records))
	copy(records, c.records)
	return State[T]{
		Phase:      c.phase,
		Criteria:   c.criteria,
		Records:    records,
		Err:        c.err,
		HasMore:    c.hasMore,
		NextOffset: c.nextOffset,
		Generation: c.generation,
		Version:    c.version,
	}
}

// publishLocked records a state change and returns the snapshot to hand subscribers.
func (c *Controller[T]) publishLocked() (State[T], []func(State[T])) {
	c.version++
	return c.snapshotLocked(), c.subscribersLocked()
}

func (c *Controller[T]) subscribersLocked() []func(State[T]) {
	if len(c.subscribers) == 0 {
		return nil
	}
	subs := make([]func(State[T]), len(c.subscribers))
	copy(subs, c.subscribers)
	return subs
}

func (c *Controller[T]) logger() *slog.Logger {
	if c.opts.Logger != nil {
		return c.opts.Logger
	}
	return slog.Default()
}

func notify[T any](subs []func(State[T]), snapshot State[T]) {
	for _, fn := range subs {
		fn(snapshot)
	}
}
