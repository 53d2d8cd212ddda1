package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Bars renders a grouped bar chart with one bar per series in every label group.
func Bars(width, height int, series []Series, labels []string, opts BarOpts) (template.HTML, error) {
	f, err := newFrame(width, height, opts.Padding, opts.TickCount, series, labels)
	if err != nil {
		return "", err
	}
	f.axisColor = fallback(opts.AxisColor, "#475569")
	f.gridColor = fallback(opts.GridColor, "#cbd5e1")

	groupWidth := f.chartWidth / float64(len(labels))
	barWidth := groupWidth * 0.8 / float64(len(series))
	gap := groupWidth * 0.1
	zeroY := f.y(0)

	var b strings.Builder
	f.open(&b, "bar", fallback(opts.Title, "Bar chart"), fallback(opts.Description, "Grouped comparison"))
	f.grid(&b)

	for i, label := range labels {
		baseX := f.padding + float64(i)*groupWidth + gap
		for si, s := range series {
			top := math.Min(f.y(s.Values[i]), zeroY)
			h := math.Abs(zeroY - f.y(s.Values[i]))
			fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"><title>%s %s: %s</title></rect>`,
				baseX+float64(si)*barWidth, top, barWidth, h, colorFor(s, si),
				template.HTMLEscapeString(s.Name), template.HTMLEscapeString(label), formatTick(s.Values[i]))
		}
		f.label(&b, f.padding+float64(i)*groupWidth+groupWidth/2, label)
	}
	f.legend(&b, series)
	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}
