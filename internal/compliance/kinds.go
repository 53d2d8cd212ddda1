package compliance

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/regwatch/regwatch/internal/listing"
)

// Column describes one table column. Field is the backend sort field; empty when the
// column cannot be sorted.
type Column struct {
	Label string
	Field string
}

// Sortable reports whether the column maps to a backend sort field.
func (c Column) Sortable() bool { return c.Field != "" }

// Kind describes one list page: where its records come from and how they render.
type Kind struct {
	Slug        string
	Title       string
	Endpoint    string
	SearchHint  string
	Columns     []Column
	DefaultSort listing.Sort
	Decode      func(raw []byte) ([]Record, error)
}

// Header returns the column labels.
func (k Kind) Header() []string {
	out := make([]string, len(k.Columns))
	for i, c := range k.Columns {
		out[i] = c.Label
	}
	return out
}

// SortAllowed reports whether field is one of the kind's sortable columns.
func (k Kind) SortAllowed(field string) bool {
	for _, c := range k.Columns {
		if c.Field != "" && c.Field == field {
			return true
		}
	}
	return false
}

// ErrUnknownKind is returned by Lookup for slugs outside the registry.
var ErrUnknownKind = errors.New("compliance: unknown list kind")

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeList unmarshals a JSON array of structs and validates every element.
func DecodeList[T any](raw []byte) ([]T, error) {
	var rows []T
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		if err := validate.Struct(rows[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return rows, nil
}

func decodeAs[T Record](raw []byte) ([]Record, error) {
	rows, err := DecodeList[T](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}

// DecodeOne decodes a single object into T and validates it.
func DecodeOne[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	if err := validate.Struct(v); err != nil {
		return v, err
	}
	return v, nil
}

const (
	SlugFacilities     = "facilities"
	SlugWarningLetters = "warning-letters"
	SlugInvestigators  = "investigators"
	SlugInspections    = "inspections"
	SlugForm483s       = "form483s"
)

var kinds = []Kind{
	{
		Slug:       SlugFacilities,
		Title:      "Facilities",
		Endpoint:   "facilities",
		SearchHint: "Firm name, FEI or city",
		Columns: []Column{
			{Label: "FEI", Field: "fei_number"},
			{Label: "Firm", Field: "legal_name"},
			{Label: "Location"},
			{Label: "Inspections", Field: "inspection_count"},
			{Label: "Last inspection", Field: "last_inspection_date"},
			{Label: "Last classification"},
		},
		DefaultSort: listing.Sort{Field: "legal_name", Direction: listing.Asc},
		Decode:      decodeAs[Facility],
	},
	{
		Slug:       SlugWarningLetters,
		Title:      "Warning Letters",
		Endpoint:   "warning_letters",
		SearchHint: "Company or subject",
		Columns: []Column{
			{Label: "Issued", Field: "letter_issue_date"},
			{Label: "Company", Field: "company_name"},
			{Label: "Issuing office", Field: "issuing_office"},
			{Label: "Subject"},
			{Label: "Posted", Field: "posted_date"},
		},
		DefaultSort: listing.Sort{Field: "letter_issue_date", Direction: listing.Desc},
		Decode:      decodeAs[WarningLetter],
	},
	{
		Slug:       SlugInvestigators,
		Title:      "Investigators",
		Endpoint:   "investigators",
		SearchHint: "Investigator name",
		Columns: []Column{
			{Label: "Name", Field: "name"},
			{Label: "Inspections", Field: "inspection_count"},
			{Label: "Form 483s", Field: "form483_count"},
			{Label: "First inspection", Field: "first_inspection_date"},
			{Label: "Last inspection", Field: "last_inspection_date"},
			{Label: "Districts"},
		},
		DefaultSort: listing.Sort{Field: "inspection_count", Direction: listing.Desc},
		Decode:      decodeAs[Investigator],
	},
	{
		Slug:       SlugInspections,
		Title:      "Inspections",
		Endpoint:   "inspections",
		SearchHint: "Firm name or FEI",
		Columns: []Column{
			{Label: "Ended", Field: "inspection_end_date"},
			{Label: "Firm", Field: "legal_name"},
			{Label: "FEI", Field: "fei_number"},
			{Label: "Classification", Field: "classification"},
			{Label: "Project area", Field: "project_area"},
			{Label: "Product type", Field: "product_type"},
		},
		DefaultSort: listing.Sort{Field: "inspection_end_date", Direction: listing.Desc},
		Decode:      decodeAs[Inspection],
	},
	{
		Slug:       SlugForm483s,
		Title:      "Form 483s",
		Endpoint:   "form483s",
		SearchHint: "Firm name",
		Columns: []Column{
			{Label: "Issued", Field: "issue_date"},
			{Label: "Firm", Field: "legal_name"},
			{Label: "Observations", Field: "observation_count"},
			{Label: "Cited systems"},
		},
		DefaultSort: listing.Sort{Field: "issue_date", Direction: listing.Desc},
		Decode:      decodeAs[Form483],
	},
}

// Kinds returns every list kind in navigation order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Lookup finds a kind by slug.
func Lookup(slug string) (Kind, error) {
	for _, k := range kinds {
		if k.Slug == slug {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("%w: %q", ErrUnknownKind, slug)
}
