// Package diagnostics renders reconstruction results for offline
// inspection: an altitude-profile PNG and an interactive HTML track map.
package diagnostics

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/balloon.report/internal/tracks"
)

// MinPlotPoints hides tracks shorter than this from the altitude profile.
const MinPlotPoints = 2

// NewAltitudePlot builds a plot of altitude against hours-before-now, one
// line per track with at least MinPlotPoints points.
func NewAltitudePlot(res *tracks.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Altitude profile - %d tracks", len(res.Tracks))
	p.X.Label.Text = "Hours before now"
	p.Y.Label.Text = "Altitude (km)"
	p.X.Min, p.X.Max = -23, 0

	plotted := make([]*tracks.Track, 0, len(res.Tracks))
	for _, t := range res.Tracks {
		if t.Len() >= MinPlotPoints {
			plotted = append(plotted, t)
		}
	}
	colors := generateColors(len(plotted))

	for i, t := range plotted {
		pts := make(plotter.XYs, 0, t.Len())
		for _, pt := range t.Points {
			pts = append(pts, plotter.XY{X: -float64(pt.Hour), Y: pt.AltitudeKm})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("line for %s: %w", t.ID, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		if i < 12 {
			p.Legend.Add(t.ID, line)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SaveAltitudePlot writes the altitude profile to a PNG (or any format
// gonum/plot infers from the extension) at path.
func SaveAltitudePlot(res *tracks.Result, path string) error {
	p, err := NewAltitudePlot(res)
	if err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save altitude plot: %w", err)
	}
	return nil
}

// WriteAltitudePlot writes the altitude profile as a PNG to w.
func WriteAltitudePlot(res *tracks.Result, w io.Writer) error {
	p, err := NewAltitudePlot(res)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("altitude plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write altitude plot: %w", err)
	}
	return nil
}

// generateColors creates a palette of distinct colors, one per track.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
