// Package tui is a terminal browser over one list view: the cursor reaching the last
// row plays the part of the scroll sentinel, and typed search text goes through the
// view's debouncer.
package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
)

// chromeLines is the number of screen lines not used by rows: title, column header,
// status and help.
const chromeLines = 4

// ListView is the view the browser drives.
type ListView = listing.View[compliance.Record]

type listState = listing.State[compliance.Record]

type stateMsg listState

// feed hands controller snapshots to the bubbletea loop. Only the newest snapshot is
// kept: later ones overwrite it before the loop reads it, and ones that arrive after a
// newer snapshot are dropped.
type feed struct {
	mu     sync.Mutex
	latest listState
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newFeed() *feed {
	return &feed{signal: make(chan struct{}, 1), done: make(chan struct{})}
}

func (f *feed) push(s listState) {
	f.mu.Lock()
	if s.Version <= f.latest.Version {
		f.mu.Unlock()
		return
	}
	f.latest = s
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *feed) next() tea.Msg {
	select {
	case <-f.signal:
	case <-f.done:
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return stateMsg(f.latest)
}

func (f *feed) close() {
	f.once.Do(func() { close(f.done) })
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	statusStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	searchStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	helpKeyStyle = lipgloss.NewStyle().Faint(true)
)

// Model is the bubbletea model of the list browser.
type Model struct {
	kind     compliance.Kind
	view     *ListView
	criteria listing.Criteria
	feed     *feed
	keys     KeyMap

	state     listState
	cursor    int
	top       int
	width     int
	height    int
	searching bool
	query     string
	quitting  bool
}

// New builds a browser over view, mounting criteria on Init.
func New(kind compliance.Kind, view *ListView, criteria listing.Criteria) Model {
	f := newFeed()
	view.Controller().Subscribe(f.push)
	return Model{
		kind:     kind,
		view:     view,
		criteria: criteria,
		feed:     f,
		keys:     DefaultKeyMap,
		query:    criteria.Search,
		width:    100,
		height:   24,
	}
}

// Init mounts the view and starts listening for state changes.
func (m Model) Init() tea.Cmd {
	m.view.Mount(m.criteria)
	return m.feed.next
}

// Update handles key presses, window resizes and controller snapshots.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.clamp()
		m.observeSentinel(false)
		return m, nil
	case stateMsg:
		m.state = listState(msg)
		m.clamp()
		m.observeSentinel(true)
		return m, m.feed.next
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.feed.close()
		m.view.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.cursor--
	case key.Matches(msg, m.keys.Down):
		m.cursor++
	case key.Matches(msg, m.keys.PageUp):
		m.cursor -= m.rowsVisible()
	case key.Matches(msg, m.keys.PageDown):
		m.cursor += m.rowsVisible()
	case key.Matches(msg, m.keys.Home):
		m.cursor = 0
	case key.Matches(msg, m.keys.End):
		m.cursor = len(m.state.Records) - 1
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		return m, nil
	case key.Matches(msg, m.keys.SortNext):
		m.view.SetSort(m.nextSort())
		m.cursor, m.top = 0, 0
		return m, nil
	case key.Matches(msg, m.keys.SortToggle):
		sort := m.view.Criteria().Sort
		if sort.Direction == listing.Desc {
			sort.Direction = listing.Asc
		} else {
			sort.Direction = listing.Desc
		}
		m.view.SetSort(sort)
		m.cursor, m.top = 0, 0
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		criteria := m.view.Criteria()
		m.view.Controller().Reset(criteria)
		m.cursor, m.top = 0, 0
		return m, nil
	default:
		return m, nil
	}
	m.clamp()
	m.observeSentinel(false)
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.SearchDone):
		m.searching = false
		return m, nil
	case key.Matches(msg, m.keys.SearchClear):
		m.searching = false
		if m.query != "" {
			m.query = ""
			m.view.Search("")
		}
		return m, nil
	}
	switch msg.Type {
	case tea.KeyBackspace:
		runes := []rune(m.query)
		if len(runes) == 0 {
			return m, nil
		}
		m.query = string(runes[:len(runes)-1])
	case tea.KeyRunes, tea.KeySpace:
		m.query += string(msg.Runes)
		if msg.Type == tea.KeySpace && len(msg.Runes) == 0 {
			m.query += " "
		}
	default:
		return m, nil
	}
	m.cursor, m.top = 0, 0
	m.view.Search(strings.TrimSpace(m.query))
	return m, nil
}

// nextSort cycles through the kind's sortable columns, keeping the direction.
func (m Model) nextSort() listing.Sort {
	current := m.view.Criteria().Sort
	var fields []string
	for _, c := range m.kind.Columns {
		if c.Sortable() {
			fields = append(fields, c.Field)
		}
	}
	if len(fields) == 0 {
		return current
	}
	next := fields[0]
	for i, f := range fields {
		if f == current.Field {
			next = fields[(i+1)%len(fields)]
			break
		}
	}
	dir := current.Direction
	if dir == "" {
		dir = listing.Asc
	}
	return listing.Sort{Field: next, Direction: dir}
}

func (m Model) rowsVisible() int {
	if n := m.height - chromeLines; n > 1 {
		return n
	}
	return 1
}

func (m *Model) clamp() {
	if m.cursor >= len(m.state.Records) {
		m.cursor = len(m.state.Records) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	rows := m.rowsVisible()
	if m.cursor < m.top {
		m.top = m.cursor
	}
	if m.cursor >= m.top+rows {
		m.top = m.cursor - rows + 1
	}
	if m.top < 0 {
		m.top = 0
	}
}

// sentinelVisible reports whether the end of the list is in reach: the cursor sits on the
// last record or the screen has room below it.
func (m Model) sentinelVisible() bool {
	if !m.state.HasMore || m.state.Err != nil {
		return false
	}
	n := len(m.state.Records)
	return m.cursor >= n-1 || m.top+m.rowsVisible() > n
}

// observeSentinel reports sentinel visibility to the view. After a page lands with the
// sentinel still on screen, it is observed again so a short page asks for the next one.
func (m Model) observeSentinel(pageLanded bool) {
	visible := m.sentinelVisible()
	if pageLanded && visible && !m.state.Loading() {
		m.view.Reveal(false)
	}
	m.view.Reveal(visible)
}

// View renders the browser.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.kind.Title))
	if m.searching || m.query != "" {
		b.WriteString("  " + searchStyle.Render("/"+m.query))
		if m.searching {
			b.WriteString("█")
		}
	}
	b.WriteString("\n")

	widths := m.columnWidths()
	header := make([]string, len(m.kind.Columns))
	for i, c := range m.kind.Columns {
		label := c.Label
		if sort := m.state.Criteria.Sort; c.Field != "" && sort.Field == c.Field {
			if sort.Direction == listing.Desc {
				label += " ↓"
			} else {
				label += " ↑"
			}
		}
		header[i] = cell(label, widths[i])
	}
	b.WriteString(headerStyle.Render(strings.Join(header, " ")) + "\n")

	rows := m.rowsVisible()
	for i := m.top; i < len(m.state.Records) && i < m.top+rows; i++ {
		cells := m.state.Records[i].Cells()
		parts := make([]string, len(widths))
		for j := range widths {
			value := ""
			if j < len(cells) {
				value = cells[j]
			}
			parts[j] = cell(value, widths[j])
		}
		line := strings.Join(parts, " ")
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(m.status() + "\n")
	b.WriteString(m.help())
	return b.String()
}

func (m Model) status() string {
	s := m.state
	switch {
	case s.Err != nil:
		return errorStyle.Render(listing.UserMessage(s.Err) + " (r to retry)")
	case s.Phase == listing.PhaseLoadingFirstPage:
		return statusStyle.Render("Loading…")
	case len(s.Records) == 0 && !s.Loading():
		return statusStyle.Render("No records match the current search.")
	}
	more := "end of list"
	if s.Phase == listing.PhaseLoadingMore {
		more = "loading more…"
	} else if s.HasMore {
		more = "more below"
	}
	return statusStyle.Render(fmt.Sprintf("%d of %s loaded, %s", m.cursor+1, compliance.FormatCount(len(s.Records)), more))
}

func (m Model) help() string {
	bindings := m.keys.ShortHelp()
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, helpKeyStyle.Render(h.Key)+" "+h.Desc)
	}
	return strings.Join(parts, "  ")
}

func (m Model) columnWidths() []int {
	n := len(m.kind.Columns)
	if n == 0 {
		return nil
	}
	avail := m.width - (n - 1)
	if avail < n {
		avail = n
	}
	widths := make([]int, n)
	for i := range widths {
		widths[i] = avail / n
	}
	widths[n-1] += avail % n
	return widths
}

func cell(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) > width {
		runes := []rune(s)
		for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
			runes = runes[:len(runes)-1]
		}
		s = string(runes) + "…"
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

// State returns the last snapshot the browser rendered.
func (m Model) State() listing.State[compliance.Record] {
	return m.state
}

// Cursor returns the selected row index.
func (m Model) Cursor() int {
	return m.cursor
}

// Query returns the search text typed so far.
func (m Model) Query() string {
	return m.query
}
