// Package chart renders the radar chart of a diagnosis report as SVG.
package chart

import (
	"bytes"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/cytodash/diagnosis"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

// Options controls the rendered size and title.
type Options struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

// DefaultOptions is a square chart sized for the dashboard.
func DefaultOptions() Options {
	return Options{Width: 6 * vg.Inch, Height: 6 * vg.Inch}
}

// rings are the radial grid levels.
var rings = []float64{0.25, 0.5, 0.75, 1.0}

const (
	ringSegments = 72
	labelRadius  = 1.12
	fillAlpha    = 0x50
)

// angle returns the direction of category k of n, counter-clockwise from east.
func angle(k, n int) float64 {
	return 2 * math.Pi * float64(k) / float64(n)
}

func polar(r, theta float64) plotter.XY {
	return plotter.XY{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
}

// RenderRadar draws one filled trace per series over a [0, 1] radial grid.
// Values above 1 are drawn beyond the outer ring; negative values collapse to the centre.
func RenderRadar(data diagnosis.RadarData, opts Options) ([]byte, error) {
	n := len(data.Categories)
	if n < 3 {
		return nil, errors.NewValueError("chart.RenderRadar", "at least 3 categories are required")
	}
	if len(data.Series) == 0 {
		return nil, errors.NewValueError("chart.RenderRadar", "no series to draw")
	}

	extent := 1.0
	for _, s := range data.Series {
		if len(s.Values) != n {
			return nil, errors.NewDimensionError("chart.RenderRadar", n, len(s.Values), 1)
		}
		for _, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewNumericalInstabilityError("chart.RenderRadar", s.Values, 0)
			}
			extent = math.Max(extent, v)
		}
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.HideAxes()
	margin := extent * 1.3
	p.X.Min, p.X.Max = -margin, margin
	p.Y.Min, p.Y.Max = -margin, margin
	p.Legend.Top = true
	p.Legend.Left = true

	if err := addGrid(p, n); err != nil {
		return nil, err
	}
	if err := addCategoryLabels(p, data.Categories, extent); err != nil {
		return nil, err
	}

	for i, s := range data.Series {
		pts := make(plotter.XYs, n)
		for k, v := range s.Values {
			pts[k] = polar(math.Max(v, 0), angle(k, n))
		}
		poly, err := plotter.NewPolygon(pts)
		if err != nil {
			return nil, errors.Wrap(err, "chart: series polygon")
		}
		c := color.NRGBAModel.Convert(plotutil.Color(i)).(color.NRGBA)
		poly.LineStyle.Color = c
		poly.LineStyle.Width = vg.Points(1.5)
		c.A = fillAlpha
		poly.Color = c

		p.Add(poly)
		p.Legend.Add(s.Name, poly)
	}

	w, err := p.WriterTo(opts.Width, opts.Height, "svg")
	if err != nil {
		return nil, errors.Wrap(err, "chart: svg canvas")
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "chart: write svg")
	}
	return buf.Bytes(), nil
}

func addGrid(p *plot.Plot, n int) error {
	grey := color.Gray{Y: 0xc8}

	for _, r := range rings {
		pts := make(plotter.XYs, ringSegments+1)
		for i := range pts {
			pts[i] = polar(r, 2*math.Pi*float64(i)/ringSegments)
		}
		ring, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrap(err, "chart: grid ring")
		}
		ring.LineStyle.Color = grey
		ring.LineStyle.Width = vg.Points(0.5)
		p.Add(ring)
	}

	for k := 0; k < n; k++ {
		spoke, err := plotter.NewLine(plotter.XYs{{}, polar(1, angle(k, n))})
		if err != nil {
			return errors.Wrap(err, "chart: spoke")
		}
		spoke.LineStyle.Color = grey
		spoke.LineStyle.Width = vg.Points(0.5)
		p.Add(spoke)
	}
	return nil
}

func addCategoryLabels(p *plot.Plot, categories []string, extent float64) error {
	n := len(categories)
	r := labelRadius * math.Max(1, math.Min(extent, 1.15))

	xys := make(plotter.XYs, n)
	for k := range categories {
		xys[k] = polar(r, angle(k, n))
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: categories})
	if err != nil {
		return errors.Wrap(err, "chart: category labels")
	}
	for k := range labels.TextStyle {
		switch c := math.Cos(angle(k, n)); {
		case c > 0.1:
			labels.TextStyle[k].XAlign = text.XLeft
		case c < -0.1:
			labels.TextStyle[k].XAlign = text.XRight
		default:
			labels.TextStyle[k].XAlign = text.XCenter
		}
		labels.TextStyle[k].YAlign = text.YCenter
	}
	p.Add(labels)
	return nil
}
