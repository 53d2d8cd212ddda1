package svg

import (
	"errors"
	"fmt"
	"html/template"
	"math"
	"strings"
)

var (
	errNoSeries    = errors.New("svg: at least one series required")
	errNoLabels    = errors.New("svg: labels required")
	errSmallCanvas = errors.New("svg: viewport too small")
)

// frame holds the plotting area shared by both chart types.
type frame struct {
	width, height int
	padding       float64
	chartWidth    float64
	chartHeight   float64
	minVal        float64
	maxVal        float64
	axisColor     string
	gridColor     string
	ticks         int
}

func newFrame(width, height int, padding float64, ticks int, series []Series, labels []string) (*frame, error) {
	if len(series) == 0 {
		return nil, errNoSeries
	}
	if len(labels) == 0 {
		return nil, errNoLabels
	}
	for _, s := range series {
		if len(s.Values) != len(labels) {
			return nil, fmt.Errorf("svg: series %q has %d values for %d labels", s.Name, len(s.Values), len(labels))
		}
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if padding <= 0 {
		padding = DefaultPadding
	}
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	f := &frame{
		width:       width,
		height:      height,
		padding:     padding,
		chartWidth:  float64(width) - 2*padding,
		chartHeight: float64(height) - 2*padding,
		ticks:       ticks,
	}
	if f.chartWidth <= 0 || f.chartHeight <= 0 {
		return nil, errSmallCanvas
	}
	f.minVal, f.maxVal = bounds(series)
	return f, nil
}

// y maps a value to its vertical position.
func (f *frame) y(v float64) float64 {
	return f.padding + f.chartHeight - (v-f.minVal)*f.chartHeight/(f.maxVal-f.minVal)
}

func (f *frame) bottom() float64 {
	return f.padding + f.chartHeight
}

func (f *frame) open(b *strings.Builder, kind, title, desc string) {
	titleID := makeID(title, kind+"-title")
	descID := makeID(title, kind+"-desc")
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="%s %s">`, f.width, f.height, titleID, descID)
	fmt.Fprintf(b, `<title id="%s">%s</title>`, titleID, template.HTMLEscapeString(title))
	fmt.Fprintf(b, `<desc id="%s">%s</desc>`, descID, template.HTMLEscapeString(desc))
}

func (f *frame) grid(b *strings.Builder) {
	for i := 0; i <= f.ticks; i++ {
		value := f.minVal + (f.maxVal-f.minVal)*float64(i)/float64(f.ticks)
		y := f.y(value)
		fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5" stroke-dasharray="2,4" aria-hidden="true"></line>`,
			f.padding, y, f.padding+f.chartWidth, y, f.gridColor)
		fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="end">%s</text>`,
			f.padding-6, y+4, f.axisColor, template.HTMLEscapeString(formatTick(value)))
	}
	fmt.Fprintf(b, `<g stroke="%s" aria-hidden="true">`, f.axisColor)
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke-width="1"></line>`, f.padding, f.padding, f.padding, f.bottom())
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke-width="1"></line>`, f.padding, f.y(0), f.padding+f.chartWidth, f.y(0))
	b.WriteString(`</g>`)
}

func (f *frame) label(b *strings.Builder, x float64, text string) {
	fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`,
		x, f.bottom()+14, f.axisColor, template.HTMLEscapeString(text))
}

// legend is drawn above the plot, one swatch per named series.
func (f *frame) legend(b *strings.Builder, series []Series) {
	if len(series) < 2 {
		return
	}
	x := f.padding
	y := math.Max(f.padding-12, 12)
	for i, s := range series {
		fmt.Fprintf(b, `<rect x="%.2f" y="%.2f" width="10" height="10" fill="%s"></rect>`, x, y-8, colorFor(s, i))
		fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="start">%s</text>`,
			x+14, y, f.axisColor, template.HTMLEscapeString(s.Name))
		x += 24 + 6*float64(len([]rune(s.Name)))
	}
}

func colorFor(s Series, i int) string {
	if strings.TrimSpace(s.Color) != "" {
		return s.Color
	}
	return palette[i%len(palette)]
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}

// bounds spans every value and always includes zero.
func bounds(series []Series) (float64, float64) {
	minVal, maxVal := 0.0, 0.0
	for _, s := range series {
		for _, v := range s.Values {
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		maxVal = minVal + 1
	}
	return minVal, maxVal
}

func makeID(base, suffix string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, strings.ToLower(strings.TrimSpace(base)))
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "chart"
	}
	return cleaned + "-" + suffix
}

func formatTick(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 10_000:
		return fmt.Sprintf("%.0fk", v/1_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	case math.Abs(v-math.Round(v)) < 1e-9:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.1f", v)
	}
}
