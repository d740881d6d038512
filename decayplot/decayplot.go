// Package decayplot renders the standard diagnostic figures of a
// quenching experiment: semilog decay curves with fit overlays, weighted
// residual traces, and the Stern-Volmer line.
package decayplot

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/kmarkley/quenchfit/dataset"
	"github.com/kmarkley/quenchfit/fit"
	"github.com/kmarkley/quenchfit/model"
	"github.com/kmarkley/quenchfit/sternvolmer"
)

const (
	width  = 7 * vg.Inch
	height = 5 * vg.Inch
)

// Decays draws every curve of the series as a semilog scatter with the
// global-fit model overlaid, and saves the figure to path. The result
// must come from fit.GlobalFit (parameter layout [tau0, kq, c, a_i]).
func Decays(s *dataset.Series, res *fit.Result, path string) error {
	if err := checkGlobal(s, res); err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = "Fluorescence decays"
	p.X.Label.Text = "time (ns)"
	p.Y.Label.Text = "counts"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	for i, d := range s.Decays {
		pts := make(plotter.XYs, 0, d.Len())
		for j := range d.Time {
			if d.Counts[j] <= 0 {
				continue // log scale
			}
			pts = append(pts, plotter.XY{X: d.Time[j], Y: d.Counts[j]})
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("decayplot: %w", err)
		}
		sc.GlyphStyle.Radius = vg.Points(1.2)
		sc.GlyphStyle.Color = plotutil.Color(i)

		m, err := model.QuenchedExp(d.Quencher)
		if err != nil {
			return err
		}
		local := []float64{res.Params[0], res.Params[1], res.Params[2], res.Params[3+i]}
		fn := plotter.NewFunction(func(t float64) float64 {
			return m.Eval(t, local)
		})
		fn.Samples = 200
		fn.Color = plotutil.Color(i)

		p.Add(sc, fn)
		p.Legend.Add(d.Label, sc)
	}
	p.Legend.Top = true

	return p.Save(width, height, path)
}

// Residuals draws the weighted residuals of the global fit, one trace per
// curve against time, and saves the figure to path.
func Residuals(s *dataset.Series, res *fit.Result, path string) error {
	if err := checkGlobal(s, res); err != nil {
		return err
	}
	if len(res.Residuals) != s.Channels() {
		return fmt.Errorf("decayplot: %d residuals for %d channels",
			len(res.Residuals), s.Channels())
	}

	p := plot.New()
	p.Title.Text = "Weighted residuals"
	p.X.Label.Text = "time (ns)"
	p.Y.Label.Text = "(model - data) / sigma"

	row := 0
	for i, d := range s.Decays {
		pts := make(plotter.XYs, d.Len())
		for j := range d.Time {
			pts[j] = plotter.XY{X: d.Time[j], Y: res.Residuals[row]}
			row++
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("decayplot: %w", err)
		}
		sc.GlyphStyle.Radius = vg.Points(1)
		sc.GlyphStyle.Color = plotutil.Color(i)
		p.Add(sc)
		p.Legend.Add(d.Label, sc)
	}

	return p.Save(width, height, path)
}

// SternVolmer draws measured tau0/tau ratios against quencher
// concentration with the fitted Stern-Volmer line 1 + Ksv*q, and saves
// the figure to path.
func SternVolmer(q, ratios []float64, a *sternvolmer.Analysis, path string) error {
	if len(q) != len(ratios) {
		return fmt.Errorf("decayplot: %d concentrations against %d ratios",
			len(q), len(ratios))
	}

	p := plot.New()
	p.Title.Text = "Stern-Volmer plot"
	p.X.Label.Text = "quencher concentration (M)"
	p.Y.Label.Text = "tau0 / tau"

	pts := make(plotter.XYs, len(q))
	for i := range q {
		pts[i] = plotter.XY{X: q[i], Y: ratios[i]}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("decayplot: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(2)
	sc.GlyphStyle.Color = plotutil.Color(0)

	fn := plotter.NewFunction(a.Ratio)
	fn.Color = plotutil.Color(1)

	p.Add(sc, fn)
	p.Legend.Add("measured", sc)
	p.Legend.Add(fmt.Sprintf("1 + %.3g q", a.Ksv), fn)
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(width, height, path)
}

func checkGlobal(s *dataset.Series, res *fit.Result) error {
	want := 3 + s.Len()
	if len(res.Params) != want || len(res.ParamNames) == 0 || res.ParamNames[0] != "tau0" {
		return fmt.Errorf("decayplot: result is not a global fit over %d curves", s.Len())
	}
	return nil
}
