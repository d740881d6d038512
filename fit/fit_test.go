package fit_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmarkley/quenchfit/dataset"
	"github.com/kmarkley/quenchfit/fit"
	"github.com/kmarkley/quenchfit/model"
)

// synthDecay generates a noiseless quenched decay: n channels of width dt,
// counts a*exp(-t*(1/tau0 + kq*q)) + c.
func synthDecay(label string, q, tau0, kq, c, a float64, n int, dt float64) *dataset.Decay {
	d := &dataset.Decay{Label: label, Quencher: q}
	rate := 1/tau0 + kq*q
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		d.Time = append(d.Time, t)
		d.Counts = append(d.Counts, a*math.Exp(-t*rate)+c)
	}
	return d
}

// A noiseless single exponential should be recovered essentially exactly
// even from a deliberately poor starting point.
func TestFit_RecoversSingleExp(t *testing.T) {
	m, err := model.SingleExp()
	require.NoError(t, err)

	d := synthDecay("pure", 0, 4.2, 0, 30, 5000, 256, 0.1)

	res, err := fit.Fit(m, d, []float64{3000, 2.5, 10}, fit.Options{})
	require.NoError(t, err)
	require.True(t, res.Converged)

	assert.Equal(t, []string{"a", "tau", "c"}, res.ParamNames)
	assert.InDelta(t, 5000, res.Params[0], 1)
	assert.InDelta(t, 4.2, res.Params[1], 1e-3)
	assert.InDelta(t, 30, res.Params[2], 0.5)

	// Noiseless data: the residuals collapse to numerical noise.
	assert.Less(t, res.ReducedChiSq, 1e-6)
	assert.Equal(t, 256-3, res.DOF)
	require.Len(t, res.Stderr, 3)
}

func TestFit_Underdetermined(t *testing.T) {
	m, err := model.SingleExp()
	require.NoError(t, err)

	d := synthDecay("tiny", 0, 4, 0, 10, 100, 3, 0.1)

	_, err = fit.Fit(m, d, []float64{100, 4, 10}, fit.Options{})
	assert.ErrorIs(t, err, fit.ErrUnderdetermined)
}

func TestFit_InitLengthMismatch(t *testing.T) {
	m, err := model.SingleExp()
	require.NoError(t, err)

	d := synthDecay("pure", 0, 4, 0, 10, 100, 32, 0.1)

	_, err = fit.Fit(m, d, []float64{100, 4}, fit.Options{})
	assert.Error(t, err)
}

// synthSeries builds a five-curve concentration series from one set of
// shared parameters.
func synthSeries(t *testing.T, tau0, kq, c float64, amps, quenchers []float64) *dataset.Series {
	t.Helper()
	var decays []*dataset.Decay
	for i, q := range quenchers {
		label := fmt.Sprintf("q=%g", q)
		decays = append(decays, synthDecay(label, q, tau0, kq, c, amps[i], 200, 0.1))
	}
	s, err := dataset.NewSeries(decays...)
	require.NoError(t, err)
	return s
}

// The global fit must pull tau0, kq and the baseline out of five curves at
// once while giving each curve its own amplitude.
func TestGlobalFit_RecoversSharedParams(t *testing.T) {
	amps := []float64{5200, 4800, 4400, 4100, 3900}
	quenchers := []float64{0, 0.02, 0.04, 0.06, 0.08}
	s := synthSeries(t, 4.5, 6.0, 25, amps, quenchers)

	init := []float64{4, 5, 20, 5000, 5000, 5000, 5000, 5000}
	res, err := fit.GlobalFit(s, init, fit.Options{})
	require.NoError(t, err)
	require.True(t, res.Converged)

	assert.Equal(t, []string{"tau0", "kq", "c", "a1", "a2", "a3", "a4", "a5"}, res.ParamNames)
	assert.InDelta(t, 4.5, res.Params[0], 0.01)
	assert.InDelta(t, 6.0, res.Params[1], 0.05)
	assert.InDelta(t, 25, res.Params[2], 0.5)
	for i, a := range amps {
		assert.InDelta(t, a, res.Params[3+i], 5, "amplitude of curve %d", i)
	}

	// The stacked residual vector covers every channel of every curve.
	assert.Len(t, res.Residuals, 5*200)
	assert.Equal(t, 5*200-8, res.DOF)
	require.NotNil(t, res.Covariance)
	require.Len(t, res.Stderr, 8)
}

func TestGlobalFit_DefaultInit(t *testing.T) {
	amps := []float64{5200, 4800, 4400, 4100, 3900}
	quenchers := []float64{0, 0.02, 0.04, 0.06, 0.08}
	s := synthSeries(t, 4.5, 6.0, 25, amps, quenchers)

	init := fit.DefaultGlobalInit(s)
	require.Len(t, init, 8)

	// The estimates only need to land in the basin of attraction.
	assert.InDelta(t, 4.5, init[0], 2.5)
	assert.Greater(t, init[1], 0.0)
	for i := range amps {
		assert.Greater(t, init[3+i], 0.0, "amplitude seed of curve %d", i)
	}

	res, err := fit.GlobalFit(s, nil, fit.Options{})
	require.NoError(t, err)
	require.True(t, res.Converged)
	assert.InDelta(t, 4.5, res.Params[0], 0.01)
	assert.InDelta(t, 6.0, res.Params[1], 0.05)
}

func TestGlobalFit_InitLengthMismatch(t *testing.T) {
	s := synthSeries(t, 4.5, 6.0, 25,
		[]float64{5200, 4800}, []float64{0, 0.04})

	_, err := fit.GlobalFit(s, []float64{4, 5, 20}, fit.Options{})
	assert.Error(t, err)
}
