// Package svg renders the small, dependency-free charts embedded in dashboard pages.
package svg

// Series is one named run of values plotted against the chart labels.
type Series struct {
	Name   string
	Values []float64
	Color  string
}

// LineOpts customises the line chart renderer.
type LineOpts struct {
	Title       string
	Description string
	AxisColor   string
	GridColor   string
	Padding     float64
	ShowDots    bool
	// Fill shades the area under the first series.
	Fill      bool
	TickCount int
}

// BarOpts customises the grouped bar chart renderer.
type BarOpts struct {
	Title       string
	Description string
	AxisColor   string
	GridColor   string
	Padding     float64
	TickCount   int
}

// Chart sizes and the palette used when a series has no colour.
const (
	DefaultWidth   = 720
	DefaultHeight  = 260
	DefaultPadding = 32.0
	DefaultTicks   = 5
)

var palette = []string{"#2563eb", "#f59e0b", "#dc2626", "#059669", "#7c3aed", "#0891b2"}
