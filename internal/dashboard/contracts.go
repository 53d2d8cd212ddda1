// Package dashboard serves the landing dashboard and the six-systems overview.
package dashboard

import (
	"context"
	"html/template"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/dashboard/svg"
)

// Service is the aggregate data the dashboard reads.
type Service interface {
	Summary(ctx context.Context) (compliance.Summary, error)
	InspectionsByYear(ctx context.Context) ([]compliance.YearCount, error)
	CitationsBySystem(ctx context.Context) ([]compliance.SystemCitations, error)
}

// LineRenderer abstracts SVG line chart rendering for the dashboard.
type LineRenderer interface {
	Line(width, height int, series []svg.Series, labels []string, opts svg.LineOpts) (template.HTML, error)
}

// BarRenderer abstracts SVG bar chart rendering for the dashboard.
type BarRenderer interface {
	Bars(width, height int, series []svg.Series, labels []string, opts svg.BarOpts) (template.HTML, error)
}

// Renderers adapts the svg package functions to the renderer interfaces.
type Renderers struct{}

// Line implements LineRenderer.
func (Renderers) Line(width, height int, series []svg.Series, labels []string, opts svg.LineOpts) (template.HTML, error) {
	return svg.Line(width, height, series, labels, opts)
}

// Bars implements BarRenderer.
func (Renderers) Bars(width, height int, series []svg.Series, labels []string, opts svg.BarOpts) (template.HTML, error) {
	return svg.Bars(width, height, series, labels, opts)
}

// Card is one headline number.
type Card struct {
	Label string
	Value string
	Href  string
}

// SystemRow is one line of the citations table.
type SystemRow struct {
	Code       string
	Name       string
	Subsystems []string
	Current    int
	Previous   int
	Change     int
}

// ViewModel combines all dashboard data for rendering.
type ViewModel struct {
	Cards          []Card
	RefreshedAt    string
	Years          []compliance.YearCount
	Systems        []SystemRow
	InspectionsSVG template.HTML
	CitationsSVG   template.HTML
}
