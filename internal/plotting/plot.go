// Package plotting renders the position trace of a run with its detected
// peaks as a PNG.
package plotting

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/pendulum.report/internal/oscillation"
)

// Default image size.
const (
	Width  = 12 * vg.Inch
	Height = 5 * vg.Inch
)

var (
	traceColor     = color.RGBA{B: 200, A: 255}
	candidateColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	peakColor      = color.RGBA{R: 220, A: 255}
	envelopeColor  = color.RGBA{G: 150, A: 255}
)

// Run is the data drawn for one acquisition.
type Run struct {
	Title      string
	Samples    []oscillation.Sample
	Candidates []oscillation.Peak
	Peaks      []oscillation.Peak
	// Equilibrium and Damping draw the fitted decay envelope when Damping
	// is positive and at least one filtered peak exists.
	Equilibrium float64
	Damping     float64
}

func toXYs(series []oscillation.Sample) plotter.XYs {
	pts := make(plotter.XYs, len(series))
	for i, s := range series {
		pts[i].X = s.Time
		pts[i].Y = s.Position
	}
	return pts
}

// New builds the plot: X(t) as a line, rejected candidates as small grey
// dots, filtered peaks as red circles and, when available, the envelope
// equilibrium ± A·exp(-b(t-t0)).
func New(r Run) (*plot.Plot, error) {
	if len(r.Samples) == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}

	p := plot.New()
	p.Title.Text = r.Title
	if p.Title.Text == "" {
		p.Title.Text = "Pendulum"
	}
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "X position"
	p.Add(plotter.NewGrid())

	trace, err := plotter.NewLine(toXYs(r.Samples))
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	trace.Color = traceColor
	trace.Width = vg.Points(1)
	p.Add(trace)
	p.Legend.Add("X(t)", trace)

	if len(r.Candidates) > 0 {
		cand, err := plotter.NewScatter(toXYs(r.Candidates))
		if err != nil {
			return nil, fmt.Errorf("candidates: %w", err)
		}
		cand.GlyphStyle.Color = candidateColor
		cand.GlyphStyle.Radius = vg.Points(1.5)
		cand.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(cand)
		p.Legend.Add("candidates", cand)
	}

	if len(r.Peaks) > 0 {
		peaks, err := plotter.NewScatter(toXYs(r.Peaks))
		if err != nil {
			return nil, fmt.Errorf("peaks: %w", err)
		}
		peaks.GlyphStyle.Color = peakColor
		peaks.GlyphStyle.Radius = vg.Points(3.5)
		peaks.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(peaks)
		p.Legend.Add("peaks", peaks)

		if r.Damping > 0 {
			first := r.Peaks[0]
			a0 := math.Abs(first.Position - r.Equilibrium)
			upper := plotter.NewFunction(func(t float64) float64 {
				return r.Equilibrium + a0*math.Exp(-r.Damping*(t-first.Time))
			})
			lower := plotter.NewFunction(func(t float64) float64 {
				return r.Equilibrium - a0*math.Exp(-r.Damping*(t-first.Time))
			})
			for _, f := range []*plotter.Function{upper, lower} {
				f.Color = envelopeColor
				f.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
				f.XMin = first.Time
				f.XMax = r.Samples[len(r.Samples)-1].Time
				f.Samples = 200
				p.Add(f)
			}
			p.Legend.Add("envelope", upper)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// WritePNG renders r as a PNG to w.
func WritePNG(w io.Writer, r Run) error {
	p, err := New(r)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG renders r to the file at path.
func SavePNG(path string, r Run) error {
	p, err := New(r)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
