package svg

import (
	"fmt"
	"html/template"
	"strings"
)

// Line renders one polyline per series over evenly spaced labels.
func Line(width, height int, series []Series, labels []string, opts LineOpts) (template.HTML, error) {
	f, err := newFrame(width, height, opts.Padding, opts.TickCount, series, labels)
	if err != nil {
		return "", err
	}
	f.axisColor = fallback(opts.AxisColor, "#475569")
	f.gridColor = fallback(opts.GridColor, "#cbd5e1")

	step := 0.0
	if len(labels) > 1 {
		step = f.chartWidth / float64(len(labels)-1)
	}
	x := func(i int) float64 {
		if len(labels) == 1 {
			return f.padding + f.chartWidth/2
		}
		return f.padding + float64(i)*step
	}

	var b strings.Builder
	f.open(&b, "line", fallback(opts.Title, "Line chart"), fallback(opts.Description, "Trend data"))
	f.grid(&b)

	for si, s := range series {
		color := colorFor(s, si)
		var path strings.Builder
		for i, v := range s.Values {
			cmd := "L"
			if i == 0 {
				cmd = "M"
			}
			fmt.Fprintf(&path, "%s%.2f %.2f ", cmd, x(i), f.y(v))
		}
		d := strings.TrimSpace(path.String())
		if opts.Fill && si == 0 {
			base := f.y(0)
			fmt.Fprintf(&b, `<path d="%s L%.2f %.2f L%.2f %.2f Z" fill="%s" fill-opacity="0.12" stroke="none" aria-hidden="true"></path>`,
				d, x(len(s.Values)-1), base, x(0), base, color)
		}
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="2" stroke-linejoin="round" stroke-linecap="round"><title>%s</title></path>`,
			d, color, template.HTMLEscapeString(s.Name))
		if opts.ShowDots {
			for i, v := range s.Values {
				fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="3" fill="%s"><title>%s %s: %s</title></circle>`,
					x(i), f.y(v), color, template.HTMLEscapeString(s.Name), template.HTMLEscapeString(labels[i]), formatTick(v))
			}
		}
	}

	for i, label := range labels {
		f.label(&b, x(i), label)
	}
	f.legend(&b, series)
	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}
