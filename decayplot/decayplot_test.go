package decayplot_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmarkley/quenchfit/dataset"
	"github.com/kmarkley/quenchfit/decayplot"
	"github.com/kmarkley/quenchfit/fit"
	"github.com/kmarkley/quenchfit/sternvolmer"
)

func testSeries(t *testing.T) *dataset.Series {
	t.Helper()
	mk := func(label string, q float64) *dataset.Decay {
		d := &dataset.Decay{Label: label, Quencher: q}
		rate := 1/4.5 + 6.0*q
		for i := 0; i < 50; i++ {
			tt := float64(i) * 0.2
			d.Time = append(d.Time, tt)
			d.Counts = append(d.Counts, 5000*math.Exp(-tt*rate)+25)
		}
		return d
	}
	s, err := dataset.NewSeries(mk("q=0", 0), mk("q=0.04", 0.04))
	require.NoError(t, err)
	return s
}

func globalResult(t *testing.T, s *dataset.Series) *fit.Result {
	t.Helper()
	res, err := fit.GlobalFit(s, []float64{4, 5, 20, 5000, 5000}, fit.Options{})
	require.NoError(t, err)
	require.True(t, res.Converged)
	return res
}

func TestDecays_WritesPNG(t *testing.T) {
	s := testSeries(t)
	res := globalResult(t, s)

	path := filepath.Join(t.TempDir(), "decays.png")
	require.NoError(t, decayplot.Decays(s, res, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestResiduals_WritesPNG(t *testing.T) {
	s := testSeries(t)
	res := globalResult(t, s)

	path := filepath.Join(t.TempDir(), "residuals.png")
	require.NoError(t, decayplot.Residuals(s, res, path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestSternVolmer_WritesPNG(t *testing.T) {
	a := &sternvolmer.Analysis{Tau0: 4.5, Kq: 6.0, Ksv: 27.0}
	q := []float64{0, 0.02, 0.04}
	ratios := []float64{1, 1.54, 2.08}

	path := filepath.Join(t.TempDir(), "sv.png")
	require.NoError(t, decayplot.SternVolmer(q, ratios, a, path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestDecays_RejectsWrongResult(t *testing.T) {
	s := testSeries(t)
	res := &fit.Result{ParamNames: []string{"a", "tau", "c"}, Params: []float64{1, 2, 3}}
	assert.Error(t, decayplot.Decays(s, res, filepath.Join(t.TempDir(), "x.png")))
}
