// Package fit performs weighted nonlinear least-squares fitting of decay
// histograms. The Levenberg-Marquardt iteration itself is delegated to
// github.com/maorshutman/lm; this package only builds the weighted
// residual and Jacobian functions, stacks residuals for the global
// shared-parameter fit, and derives uncertainties from the Jacobian.
package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/mat"

	"github.com/kmarkley/quenchfit/dataset"
	"github.com/kmarkley/quenchfit/model"
)

// ErrUnderdetermined is returned when a fit has no spare degrees of
// freedom: at most as many data points as parameters.
var ErrUnderdetermined = errors.New("fit: fewer data points than parameters")

// errSingularJacobian marks a Jacobian the SVD could not decompose for
// error propagation.
var errSingularJacobian = errors.New("fit: jacobian SVD failed")

// Options tunes the optimizer. The zero value selects the defaults below.
type Options struct {
	// MaxIterations bounds the LM iteration count. Default 200.
	MaxIterations int

	// Tau scales the initial damping. Default 1e-6.
	Tau float64

	// Eps1 and Eps2 are the gradient and step convergence thresholds.
	// Default 1e-8 each.
	Eps1, Eps2 float64

	// ObjectiveTol stops the iteration when the objective falls below
	// it. Default 1e-16.
	ObjectiveTol float64

	// Rcond drops singular values below Rcond times the largest during
	// error propagation. Default 1e-12.
	Rcond float64
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 200
	}
	if o.Tau <= 0 {
		o.Tau = 1e-6
	}
	if o.Eps1 <= 0 {
		o.Eps1 = 1e-8
	}
	if o.Eps2 <= 0 {
		o.Eps2 = 1e-8
	}
	if o.ObjectiveTol <= 0 {
		o.ObjectiveTol = 1e-16
	}
	if o.Rcond <= 0 {
		o.Rcond = 1e-12
	}
	return o
}

// Result is the optimizer result bundle.
type Result struct {
	// ParamNames and Params are parallel: best-fit values in vector
	// order. Stderr holds the one-sigma uncertainties from the
	// covariance diagonal; it is nil when the fit did not converge or
	// the Jacobian could not be decomposed.
	ParamNames []string
	Params     []float64
	Stderr     []float64

	// Covariance is the parameter covariance matrix from the SVD of the
	// weighted Jacobian, scaled by reduced chi-square.
	Covariance *mat.SymDense

	// Residuals is the weighted residual vector at the solution; for a
	// global fit it is the stacked vector, curve by curve.
	Residuals []float64

	// RSS is the residual sum of squares; ReducedChiSq is RSS divided
	// by the degrees of freedom.
	RSS          float64
	ReducedChiSq float64
	DOF          int

	// Jacobian is the weighted Jacobian at the solution (rows follow
	// Residuals, columns follow Params).
	Jacobian *mat.Dense

	// Converged reports whether the optimizer finished with a finite
	// solution. A false value still carries the best parameters found.
	Converged bool
}

// problem couples residual and Jacobian fillers of a weighted fit.
type problem struct {
	size int // residual count
	dim  int // parameter count

	names []string
	resid func(dst, x []float64)
	jac   func(dst *mat.Dense, x []float64)
}

// Fit runs a weighted single-curve fit of m against d starting from init.
// Missing sigmas are filled with Poisson uncertainties on a copy; d is
// not modified.
func Fit(m *model.Model, d *dataset.Decay, init []float64, opts Options) (*Result, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if len(init) != m.NumParams() {
		return nil, fmt.Errorf("fit: model %s has %d parameters, got %d initial values",
			m.Name, m.NumParams(), len(init))
	}
	sigma := effectiveSigma(d)
	n, p := d.Len(), m.NumParams()
	if n <= p {
		return nil, fmt.Errorf("%w: %d points, %d parameters", ErrUnderdetermined, n, p)
	}

	grad := make([]float64, p)
	prob := problem{
		size:  n,
		dim:   p,
		names: append([]string(nil), m.Params...),
		resid: func(dst, x []float64) {
			for i := range d.Time {
				dst[i] = (m.Eval(d.Time[i], x) - d.Counts[i]) / sigma[i]
			}
		},
		jac: func(dst *mat.Dense, x []float64) {
			for i := range d.Time {
				m.Grad(grad, d.Time[i], x)
				for j := 0; j < p; j++ {
					dst.Set(i, j, grad[j]/sigma[i])
				}
			}
		},
	}
	return solve(prob, init, opts)
}

// GlobalFit runs the shared-parameter fit over a concentration series.
//
// The parameter vector is [tau0, kq, c, a_1 .. a_n]: the unquenched
// lifetime, the bimolecular quenching rate and the baseline are shared by
// every curve, and each curve keeps its own amplitude. The residual
// function walks the curves in series order and writes each curve's
// weighted residuals into a contiguous span of the destination, so the
// optimizer sees one stacked vector of length Series.Channels().
//
// A nil init uses DefaultGlobalInit.
func GlobalFit(s *dataset.Series, init []float64, opts Options) (*Result, error) {
	nc := s.Len()
	dim := 3 + nc
	if init == nil {
		init = DefaultGlobalInit(s)
	}
	if len(init) != dim {
		return nil, fmt.Errorf("fit: global fit over %d curves needs %d initial values, got %d",
			nc, dim, len(init))
	}

	models := make([]*model.Model, nc)
	sigmas := make([][]float64, nc)
	size := 0
	for i, d := range s.Decays {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		m, err := model.QuenchedExp(d.Quencher)
		if err != nil {
			return nil, err
		}
		models[i] = m
		sigmas[i] = effectiveSigma(d)
		size += d.Len()
	}
	if size <= dim {
		return nil, fmt.Errorf("%w: %d points, %d parameters", ErrUnderdetermined, size, dim)
	}

	names := []string{"tau0", "kq", "c"}
	for i := range s.Decays {
		names = append(names, fmt.Sprintf("a%d", i+1))
	}

	// Per-curve view of the shared vector: [tau0, kq, c, a_curve].
	local := make([]float64, 4)
	grad := make([]float64, 4)
	view := func(x []float64, curve int) []float64 {
		local[0], local[1], local[2], local[3] = x[0], x[1], x[2], x[3+curve]
		return local
	}

	prob := problem{
		size:  size,
		dim:   dim,
		names: names,
		resid: func(dst, x []float64) {
			row := 0
			for ci, d := range s.Decays {
				lx := view(x, ci)
				for i := range d.Time {
					dst[row] = (models[ci].Eval(d.Time[i], lx) - d.Counts[i]) / sigmas[ci][i]
					row++
				}
			}
		},
		jac: func(dst *mat.Dense, x []float64) {
			row := 0
			for ci, d := range s.Decays {
				lx := view(x, ci)
				for i := range d.Time {
					models[ci].Grad(grad, d.Time[i], lx)
					w := sigmas[ci][i]
					// Shared columns.
					dst.Set(row, 0, grad[0]/w)
					dst.Set(row, 1, grad[1]/w)
					dst.Set(row, 2, grad[2]/w)
					// Amplitude columns: zero except the owning curve.
					for aj := 0; aj < len(s.Decays); aj++ {
						if aj == ci {
							dst.Set(row, 3+aj, grad[3]/w)
						} else {
							dst.Set(row, 3+aj, 0)
						}
					}
					row++
				}
			}
		},
	}
	return solve(prob, init, opts)
}

// DefaultGlobalInit estimates starting values for GlobalFit from the data:
// amplitudes from each curve's peak above baseline, the baseline from the
// tail of the least-quenched curve, tau0 from its 1/e crossing, and kq
// from the lifetime shortening between the first and last curve.
func DefaultGlobalInit(s *dataset.Series) []float64 {
	first := s.Decays[0]
	last := s.Decays[s.Len()-1]

	c := tailMean(first.Counts)
	tau0 := crossingTime(first, c)

	kq := 0.0
	if q := last.Quencher; q > 0 {
		tauQ := crossingTime(last, tailMean(last.Counts))
		if tauQ > 0 && tau0 > 0 && tauQ < tau0 {
			kq = (1/tauQ - 1/tau0) / q
		}
	}

	init := []float64{tau0, kq, c}
	for _, d := range s.Decays {
		peak := d.Counts[d.PeakIndex()]
		init = append(init, math.Max(peak-c, 1))
	}
	return init
}

// DefaultSingleInit estimates starting values [a, tau, c] for a
// single-curve fit with model.SingleExp, using the same tail-baseline and
// 1/e-crossing estimates as the global seeding.
func DefaultSingleInit(d *dataset.Decay) []float64 {
	c := tailMean(d.Counts)
	tau := crossingTime(d, c)
	a := math.Max(d.Counts[d.PeakIndex()]-c, 1)
	return []float64{a, tau, c}
}

// tailMean averages the last twentieth of a count vector, a cheap
// baseline estimate.
func tailMean(counts []float64) float64 {
	n := len(counts) / 20
	if n < 1 {
		n = 1
	}
	sum := 0.0
	for _, v := range counts[len(counts)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// crossingTime returns the time after the peak at which the baseline-
// subtracted counts first fall below peak/e, measured from the peak.
func crossingTime(d *dataset.Decay, baseline float64) float64 {
	p := d.PeakIndex()
	peak := d.Counts[p] - baseline
	if peak <= 0 {
		return 1
	}
	target := peak / math.E
	for i := p + 1; i < len(d.Counts); i++ {
		if d.Counts[i]-baseline <= target {
			return d.Time[i] - d.Time[p]
		}
	}
	// Never crossed: fall back to the observed window.
	return d.Time[len(d.Time)-1] - d.Time[p]
}

// effectiveSigma returns the decay's sigmas, or freshly computed Poisson
// sigmas when the decay carries none. The decay itself is left untouched.
func effectiveSigma(d *dataset.Decay) []float64 {
	if len(d.Sigma) == len(d.Time) {
		return d.Sigma
	}
	out := make([]float64, len(d.Counts))
	for i, c := range d.Counts {
		if c < 1 {
			out[i] = 1
		} else {
			out[i] = math.Sqrt(c)
		}
	}
	return out
}

// solve hands the problem to the LM optimizer and assembles the Result,
// including SVD-based error propagation.
func solve(prob problem, init []float64, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	lmProb := lm.LMProblem{
		Dim:        prob.dim,
		Size:       prob.size,
		Func:       prob.resid,
		Jac:        prob.jac,
		InitParams: append([]float64(nil), init...),
		Tau:        opts.Tau,
		Eps1:       opts.Eps1,
		Eps2:       opts.Eps2,
	}
	settings := &lm.Settings{Iterations: opts.MaxIterations, ObjectiveTol: opts.ObjectiveTol}

	results, err := lm.LM(lmProb, settings)
	if err != nil {
		return nil, fmt.Errorf("fit: optimizer: %w", err)
	}
	return assemble(prob, results.X, opts), nil
}

// assemble evaluates the solution the optimizer returned: residuals, RSS,
// the finiteness check behind Converged, and error propagation. A
// non-finite solution comes back with Converged=false, the best
// parameters found, and no uncertainties; so does a solution whose
// Jacobian cannot be decomposed.
func assemble(prob problem, params []float64, opts Options) *Result {
	res := &Result{
		ParamNames: prob.names,
		Params:     append([]float64(nil), params...),
		DOF:        prob.size - prob.dim,
		Converged:  true,
	}

	res.Residuals = make([]float64, prob.size)
	prob.resid(res.Residuals, res.Params)
	for _, r := range res.Residuals {
		res.RSS += r * r
	}
	res.ReducedChiSq = res.RSS / float64(res.DOF)

	for _, v := range res.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			res.Converged = false
		}
	}
	if math.IsNaN(res.RSS) || math.IsInf(res.RSS, 0) {
		res.Converged = false
	}
	if !res.Converged {
		return res
	}

	res.Jacobian = mat.NewDense(prob.size, prob.dim, nil)
	prob.jac(res.Jacobian, res.Params)

	cov, err := covarianceFromJacobian(res.Jacobian, res.ReducedChiSq, opts.Rcond)
	if err != nil {
		// The fit itself stands; only the uncertainties are lost, which
		// callers see as a nil Stderr.
		return res
	}
	res.Covariance = cov
	res.Stderr = make([]float64, prob.dim)
	for i := 0; i < prob.dim; i++ {
		res.Stderr[i] = math.Sqrt(cov.At(i, i))
	}
	return res
}

// covarianceFromJacobian computes sigma2 * (J^T J)^-1 through a thin SVD
// of J. Singular values below rcond times the largest are treated as
// exact zeros, which keeps a rank-deficient fit from exploding the
// reported uncertainties into garbage.
func covarianceFromJacobian(j *mat.Dense, sigma2, rcond float64) (*mat.SymDense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(j, mat.SVDThin); !ok {
		return nil, errSingularJacobian
	}
	s := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	p := len(s)
	smax := s[0]
	cov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for jj := i; jj < p; jj++ {
			sum := 0.0
			for k := 0; k < p; k++ {
				if s[k] <= rcond*smax {
					continue
				}
				sum += v.At(i, k) * v.At(jj, k) / (s[k] * s[k])
			}
			cov.SetSym(i, jj, sum*sigma2)
		}
	}
	return cov, nil
}
