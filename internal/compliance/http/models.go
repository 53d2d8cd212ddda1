package compliancehttp

import (
	"net/url"
	"strconv"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
)

// RowView is one rendered record.
type RowView struct {
	Key   string
	Href  string
	Cells []string
}

// RowsFragment is the data of partials/rows.html: a run of rows followed, when more
// pages exist, by the scroll sentinel that asks for the next run.
type RowsFragment struct {
	Base       string
	View       string
	Rows       []RowView
	After      int
	Generation uint64
	HasMore    bool
	Error      string
	Empty      bool
	Span       int
}

// MoreHref is the URL the sentinel requests when it scrolls into view.
func (f RowsFragment) MoreHref() string {
	q := url.Values{}
	q.Set(paramView, f.View)
	q.Set(paramAfter, strconv.Itoa(f.After))
	q.Set(paramGen, strconv.FormatUint(f.Generation, 10))
	return f.Base + "/more?" + q.Encode()
}

// FilterOption is one dropdown entry.
type FilterOption struct {
	Value    string
	Label    string
	Selected bool
}

// FilterControl is one filter dropdown.
type FilterControl struct {
	Name    string
	Label   string
	Options []FilterOption
}

// ColumnHeader is a table header cell, linking to the opposite sort when sortable.
type ColumnHeader struct {
	Label     string
	Href      string
	Active    bool
	Direction string
}

// ListPage is the data of pages/list.html.
type ListPage struct {
	Kind     compliance.Kind
	Base     string
	View     string
	Search   string
	Sort     listing.Sort
	Filters  []FilterControl
	Columns  []ColumnHeader
	Fragment RowsFragment
}

func (p ListPage) viewHref(action string) string {
	return p.Base + "/" + action + "?" + url.Values{paramView: {p.View}}.Encode()
}

// SearchHref is where the search box sends its text.
func (p ListPage) SearchHref() string { return p.viewHref("search") }

// ReleaseHref is where the page posts when it is left.
func (p ListPage) ReleaseHref() string { return p.viewHref("release") }

// ExportHref downloads the rows the page's view has loaded.
func (p ListPage) ExportHref() string { return p.viewHref("export.csv") }

// FacilityPage is the data of pages/facility.html.
type FacilityPage struct {
	Facility    compliance.Facility
	Name        string
	Location    string
	Inspections ListPage
}

func rowsOf(records []compliance.Record) []RowView {
	rows := make([]RowView, len(records))
	for i, rec := range records {
		row := RowView{Key: rec.Key(), Cells: rec.Cells()}
		if l, ok := rec.(compliance.Linker); ok {
			row.Href = l.Href()
		}
		rows[i] = row
	}
	return rows
}

// fragment renders the records of state from index after onwards.
func fragment(base, viewID string, kind compliance.Kind, state listing.State[compliance.Record], after int) RowsFragment {
	if after < 0 || after > len(state.Records) {
		after = len(state.Records)
	}
	f := RowsFragment{
		Base:       base,
		View:       viewID,
		Rows:       rowsOf(state.Records[after:]),
		After:      len(state.Records),
		Generation: state.Generation,
		HasMore:    state.HasMore && state.Err == nil,
		Span:       len(kind.Columns),
		Empty:      after == 0 && len(state.Records) == 0 && state.Err == nil,
	}
	if state.Err != nil {
		f.Error = listing.UserMessage(state.Err)
	}
	return f
}

func filterControls(defs []listing.FilterDefinition, current listing.Filters) []FilterControl {
	controls := make([]FilterControl, 0, len(defs))
	for _, d := range defs {
		selected, set := current.Get(d.Key)
		ctl := FilterControl{Name: filterPrefix + d.Key, Label: d.Label}
		ctl.Options = append(ctl.Options, FilterOption{Value: "all", Label: "All", Selected: !set})
		for _, v := range d.AllowedValues {
			ctl.Options = append(ctl.Options, FilterOption{Value: v, Label: optionLabel(d.Key, v), Selected: set && v == selected})
		}
		controls = append(controls, ctl)
	}
	return controls
}

func optionLabel(key, value string) string {
	switch key {
	case "classification":
		return compliance.Classification(value)
	case "system_code":
		return compliance.SystemName(value)
	}
	return value
}

func columnHeaders(base string, kind compliance.Kind, criteria listing.Criteria) []ColumnHeader {
	headers := make([]ColumnHeader, len(kind.Columns))
	for i, c := range kind.Columns {
		h := ColumnHeader{Label: c.Label}
		if c.Sortable() {
			next := listing.Sort{Field: c.Field, Direction: listing.Asc}
			if criteria.Sort.Field == c.Field {
				h.Active = true
				h.Direction = string(criteria.Sort.Direction)
				if criteria.Sort.Direction == listing.Asc {
					next.Direction = listing.Desc
				}
			}
			h.Href = base + "?" + criteriaQuery(criteria, next).Encode()
		}
		headers[i] = h
	}
	return headers
}
