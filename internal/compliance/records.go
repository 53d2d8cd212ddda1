package compliance

import (
	"net/url"
	"strconv"
	"strings"
)

// Record is a row of any list. Cells follow the column order of the record's Kind.
type Record interface {
	Key() string
	Cells() []string
}

// Linker is implemented by records that link to a detail page.
type Linker interface {
	Href() string
}

// RecordKey is the listing key function for every kind.
func RecordKey(r Record) string {
	return r.Key()
}

func facilityHref(fei FlexString) string {
	if fei == "" {
		return ""
	}
	return "/facilities/" + url.PathEscape(string(fei))
}

func itoa(n FlexInt) string {
	return strconv.FormatInt(int64(n), 10)
}

// Facility is an FDA-registered establishment identified by its FEI number.
type Facility struct {
	FEI                FlexString `json:"fei_number" validate:"required"`
	Name               string     `json:"legal_name" validate:"required"`
	Address            string     `json:"address"`
	City               string     `json:"city"`
	State              string     `json:"state"`
	Country            string     `json:"country"`
	PostalCode         FlexString `json:"zip"`
	Latitude           FlexFloat  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude          FlexFloat  `json:"longitude" validate:"gte=-180,lte=180"`
	InspectionCount    FlexInt    `json:"inspection_count" validate:"gte=0"`
	LastInspectionDate Date       `json:"last_inspection_date"`
	LastClassification string     `json:"last_classification"`
}

func (f Facility) Key() string  { return string(f.FEI) }
func (f Facility) Href() string { return facilityHref(f.FEI) }

func (f Facility) Cells() []string {
	return []string{
		string(f.FEI),
		DisplayName(f.Name),
		f.Location(),
		FormatCount(f.InspectionCount.Int()),
		f.LastInspectionDate.String(),
		Classification(f.LastClassification),
	}
}

// Location joins city, state and country, skipping blanks.
func (f Facility) Location() string {
	parts := make([]string, 0, 3)
	if f.City != "" {
		parts = append(parts, DisplayName(f.City))
	}
	for _, p := range []string{f.State, f.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// WarningLetter is a Warning Letter posted by FDA.
type WarningLetter struct {
	ID             FlexString `json:"letter_id" validate:"required"`
	Company        string     `json:"company_name" validate:"required"`
	FEI            FlexString `json:"fei_number"`
	IssueDate      Date       `json:"letter_issue_date"`
	PostedDate     Date       `json:"posted_date"`
	IssuingOffice  string     `json:"issuing_office"`
	Subject        string     `json:"subject"`
	URL            string     `json:"url" validate:"omitempty,url"`
	ResponseLetter bool       `json:"response_letter"`
}

func (w WarningLetter) Key() string  { return string(w.ID) }
func (w WarningLetter) Href() string { return facilityHref(w.FEI) }

func (w WarningLetter) Cells() []string {
	return []string{
		w.IssueDate.String(),
		DisplayName(w.Company),
		w.IssuingOffice,
		w.Subject,
		w.PostedDate.String(),
	}
}

// Investigator is an FDA investigator with aggregate inspection activity.
type Investigator struct {
	ID                  FlexString `json:"investigator_id" validate:"required"`
	Name                string     `json:"name" validate:"required"`
	InspectionCount     FlexInt    `json:"inspection_count" validate:"gte=0"`
	Form483Count        FlexInt    `json:"form483_count" validate:"gte=0"`
	FirstInspectionDate Date       `json:"first_inspection_date"`
	LastInspectionDate  Date       `json:"last_inspection_date"`
	Districts           []string   `json:"districts"`
}

func (i Investigator) Key() string { return string(i.ID) }

func (i Investigator) Cells() []string {
	return []string{
		DisplayName(i.Name),
		FormatCount(i.InspectionCount.Int()),
		FormatCount(i.Form483Count.Int()),
		i.FirstInspectionDate.String(),
		i.LastInspectionDate.String(),
		strings.Join(i.Districts, ", "),
	}
}

// Inspection is a single FDA inspection with its final classification.
type Inspection struct {
	ID             FlexString `json:"inspection_id" validate:"required"`
	FEI            FlexString `json:"fei_number" validate:"required"`
	FirmName       string     `json:"legal_name"`
	EndDate        Date       `json:"inspection_end_date"`
	Classification string     `json:"classification"`
	ProjectArea    string     `json:"project_area"`
	ProductType    string     `json:"product_type"`
	FiscalYear     FlexInt    `json:"fiscal_year" validate:"gte=0"`
}

func (i Inspection) Key() string  { return string(i.ID) }
func (i Inspection) Href() string { return facilityHref(i.FEI) }

func (i Inspection) Cells() []string {
	return []string{
		i.EndDate.String(),
		DisplayName(i.FirmName),
		string(i.FEI),
		Classification(i.Classification),
		i.ProjectArea,
		i.ProductType,
	}
}

// Form483 is a Form FDA 483 issued at the close of an inspection.
type Form483 struct {
	ID               FlexString `json:"id" validate:"required"`
	FEI              FlexString `json:"fei_number"`
	FirmName         string     `json:"legal_name" validate:"required"`
	IssueDate        Date       `json:"issue_date"`
	ObservationCount FlexInt    `json:"observation_count" validate:"gte=0"`
	CitedSystems     []string   `json:"cited_systems"`
}

func (f Form483) Key() string  { return string(f.ID) }
func (f Form483) Href() string { return facilityHref(f.FEI) }

func (f Form483) Cells() []string {
	names := make([]string, 0, len(f.CitedSystems))
	for _, code := range f.CitedSystems {
		names = append(names, SystemName(code))
	}
	return []string{
		f.IssueDate.String(),
		DisplayName(f.FirmName),
		FormatCount(f.ObservationCount.Int()),
		strings.Join(names, ", "),
	}
}

// Classification expands the NAI/VAI/OAI inspection codes.
func Classification(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "NAI":
		return "No Action Indicated"
	case "VAI":
		return "Voluntary Action Indicated"
	case "OAI":
		return "Official Action Indicated"
	default:
		return code
	}
}
