package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
)

// firms serves total facilities and records every query it answers.
type firms struct {
	total int
	fail  error

	mu      sync.Mutex
	queries []listing.Query
}

func (f *firms) Fetch(_ context.Context, q listing.Query) (listing.Page[compliance.Record], error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.fail != nil {
		return listing.Page[compliance.Record]{}, f.fail
	}
	var rows []compliance.Record
	for i := q.Offset; i < f.total && i < q.Offset+q.PageSize; i++ {
		rows = append(rows, compliance.Facility{
			FEI:  compliance.FlexString(fmt.Sprintf("%d", 3000+i)),
			Name: fmt.Sprintf("FIRM %02d", i),
		})
	}
	return listing.NewPage(rows, q.Offset), nil
}

func (f *firms) last() listing.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func (f *firms) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func newModel(t *testing.T, src *firms, rows int) Model {
	t.Helper()
	kind, err := compliance.Lookup(compliance.SlugFacilities)
	require.NoError(t, err)
	ctrl := listing.NewController[compliance.Record](src, compliance.RecordKey, listing.Options{PageSize: 5})
	view := listing.NewView(ctrl, 50*time.Millisecond)
	m := New(kind, view, listing.Criteria{Sort: kind.DefaultSort})
	t.Cleanup(func() {
		m.feed.close()
		view.Close()
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: rows + chromeLines})
	return updated.(Model)
}

// settle applies state snapshots until the controller is idle with until satisfied.
func settle(t *testing.T, m Model, until func(listState) bool) Model {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		got := make(chan tea.Msg, 1)
		go func() { got <- m.feed.next() }()
		select {
		case msg := <-got:
			updated, _ := m.Update(msg)
			m = updated.(Model)
			if !m.state.Loading() && until(m.state) {
				return m
			}
		case <-deadline:
			m.feed.close()
			t.Fatalf("state never settled; last phase %s with %d records", m.state.Phase, len(m.state.Records))
			return m
		}
	}
}

func records(n int) func(listState) bool {
	return func(s listState) bool { return len(s.Records) == n }
}

func press(m Model, keys ...tea.KeyMsg) Model {
	for _, k := range keys {
		updated, _ := m.Update(k)
		m = updated.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelFillsScreenOnMount(t *testing.T) {
	src := &firms{total: 23}
	m := newModel(t, src, 10)
	m.Init()

	m = settle(t, m, records(10))

	assert.Equal(t, 2, src.count())
	assert.True(t, m.state.HasMore)
	assert.Contains(t, m.View(), "Firm 00")
	assert.Contains(t, m.View(), "more below")
}

func TestModelLoadsMoreAtLastRow(t *testing.T) {
	src := &firms{total: 23}
	m := newModel(t, src, 10)
	m.Init()
	m = settle(t, m, records(10))

	for _, want := range []int{15, 20, 23} {
		m = press(m, tea.KeyMsg{Type: tea.KeyEnd})
		m = settle(t, m, records(want))
	}
	assert.False(t, m.state.HasMore)
	assert.Equal(t, 5, src.count())
	assert.Equal(t, 20, src.last().Offset)

	m = press(m, tea.KeyMsg{Type: tea.KeyEnd})
	assert.Equal(t, 22, m.Cursor())
	assert.Equal(t, 5, src.count(), "an exhausted list stops fetching")
	assert.Contains(t, m.View(), "end of list")
}

func TestModelScrollsWithCursor(t *testing.T) {
	src := &firms{total: 8}
	m := newModel(t, src, 3)
	m.Init()
	m = settle(t, m, records(5))

	m = press(m, runes("j"), runes("j"), runes("j"))
	assert.Equal(t, 3, m.Cursor())
	assert.Equal(t, 1, m.top)

	m = press(m, runes("g"))
	assert.Equal(t, 0, m.Cursor())
	assert.Equal(t, 0, m.top)

	m = press(m, runes("k"))
	assert.Equal(t, 0, m.Cursor())
}

func TestModelSearchIsDebounced(t *testing.T) {
	src := &firms{total: 3}
	m := newModel(t, src, 10)
	m.Init()
	m = settle(t, m, records(3))
	before := src.count()

	m = press(m, runes("/"), runes("a"), runes("c"), runes("m"), tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Equal(t, "ac", m.Query())
	assert.Contains(t, m.View(), "/ac")

	m = settle(t, m, func(s listState) bool { return s.Criteria.Search == "ac" })
	assert.Equal(t, before+1, src.count())
	assert.Equal(t, "ac", src.last().Search)

	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Empty(t, m.Query())
	settle(t, m, func(s listState) bool { return s.Criteria.Search == "" })
	assert.Empty(t, src.last().Search)
}

func TestModelSortKeys(t *testing.T) {
	src := &firms{total: 3}
	m := newModel(t, src, 10)
	m.Init()
	m = settle(t, m, records(3))

	m = press(m, runes("s"))
	m = settle(t, m, func(s listState) bool { return s.Criteria.Sort.Field == "inspection_count" })
	assert.Equal(t, listing.Sort{Field: "inspection_count", Direction: listing.Asc}, src.last().Sort)

	m = press(m, runes("S"))
	m = settle(t, m, func(s listState) bool { return s.Criteria.Sort.Direction == listing.Desc })
	assert.Equal(t, listing.Desc, src.last().Sort.Direction)
	assert.Contains(t, m.View(), "Inspections ↓")
}

func TestModelShowsFetchError(t *testing.T) {
	src := &firms{total: 3, fail: &listing.FetchError{StatusCode: 503, Message: "maintenance"}}
	m := newModel(t, src, 10)
	m.Init()
	m = settle(t, m, func(s listState) bool { return s.Err != nil })

	view := m.View()
	assert.Contains(t, view, "backend returned status 503: maintenance")
	assert.False(t, strings.Contains(view, "more below"))
	assert.Equal(t, 1, src.count(), "an errored list does not page")
}

func TestModelQuitClosesView(t *testing.T) {
	src := &firms{total: 3}
	m := newModel(t, src, 10)
	m.Init()
	m = settle(t, m, records(3))

	updated, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Empty(t, updated.View())
	assert.ErrorIs(t, m.view.Controller().Wait(context.Background()), listing.ErrClosed)
}

func TestFeedDropsSnapshotsOlderThanLatest(t *testing.T) {
	f := newFeed()
	defer f.close()

	ready := listState{Phase: listing.PhaseReady, Generation: 1, Version: 2, Records: make([]compliance.Record, 20)}
	reset := listState{Phase: listing.PhaseLoadingFirstPage, Generation: 2, Version: 3}

	// The reset's snapshot overtakes the ready one it replaced.
	f.push(reset)
	f.push(ready)

	msg, ok := f.next().(stateMsg)
	require.True(t, ok)
	assert.Equal(t, uint64(3), msg.Version)
	assert.Equal(t, listing.PhaseLoadingFirstPage, msg.Phase)
	assert.Empty(t, msg.Records, "records of the previous query never reach the screen")

	select {
	case <-f.signal:
		t.Fatal("a dropped snapshot must not wake the loop")
	default:
	}
}
