// Package sternvolmer turns global-fit output into Stern-Volmer quenching
// quantities: the Stern-Volmer constant Ksv = kq*tau0, quenched lifetimes
// tau(q), and the linear Stern-Volmer relation tau0/tau = 1 + Ksv*q.
package sternvolmer

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/kmarkley/quenchfit/fit"
)

var (
	// ErrNotQuenchedFit is returned when a fit result lacks the tau0/kq
	// parameters this analysis is built on.
	ErrNotQuenchedFit = errors.New("sternvolmer: fit result has no tau0/kq parameters")

	// ErrDegenerateLine is returned when a line fit is attempted on
	// fewer than two points.
	ErrDegenerateLine = errors.New("sternvolmer: need at least two points for a line")
)

// Analysis holds the quenching quantities derived from a converged fit.
type Analysis struct {
	// Tau0 is the unquenched lifetime, Kq the bimolecular quenching
	// rate. Ksv is their product, the Stern-Volmer constant.
	Tau0, Kq, Ksv float64

	// Tau0Err, KqErr and KsvErr are one-sigma uncertainties. KsvErr is
	// propagated through the product including the tau0-kq covariance.
	Tau0Err, KqErr, KsvErr float64
}

// FromFit extracts the Stern-Volmer quantities from a global fit result.
// The result must carry tau0 and kq parameters (as GlobalFit produces).
func FromFit(res *fit.Result) (*Analysis, error) {
	it, ik := -1, -1
	for i, name := range res.ParamNames {
		switch name {
		case "tau0":
			it = i
		case "kq":
			ik = i
		}
	}
	if it < 0 || ik < 0 {
		return nil, ErrNotQuenchedFit
	}

	a := &Analysis{
		Tau0: res.Params[it],
		Kq:   res.Params[ik],
	}
	a.Ksv = a.Tau0 * a.Kq

	if res.Stderr != nil {
		a.Tau0Err = res.Stderr[it]
		a.KqErr = res.Stderr[ik]
	}
	if res.Covariance != nil {
		// Var(tau0*kq) = kq^2 Var(tau0) + tau0^2 Var(kq)
		//              + 2 tau0 kq Cov(tau0, kq).
		v := a.Kq*a.Kq*res.Covariance.At(it, it) +
			a.Tau0*a.Tau0*res.Covariance.At(ik, ik) +
			2*a.Tau0*a.Kq*res.Covariance.At(it, ik)
		if v > 0 {
			a.KsvErr = math.Sqrt(v)
		}
	}
	return a, nil
}

// Tau returns the quenched lifetime at concentration q:
// tau(q) = 1 / (1/tau0 + kq*q).
func (a *Analysis) Tau(q float64) float64 {
	return 1 / (1/a.Tau0 + a.Kq*q)
}

// Ratio returns the Stern-Volmer ratio tau0/tau(q) = 1 + Ksv*q.
func (a *Analysis) Ratio(q float64) float64 {
	return 1 + a.Ksv*q
}

// Line fits y = intercept + slope*x by ordinary least squares through a
// QR decomposition of the Vandermonde matrix, and reports the coefficient
// of determination. Handing it quencher concentrations as x and measured
// tau0/tau ratios as y gives an independent Ksv estimate: the slope.
func Line(x, y []float64) (slope, intercept, r2 float64, err error) {
	n := len(x)
	if n != len(y) {
		return 0, 0, 0, fmt.Errorf("sternvolmer: %d x values against %d y values", n, len(y))
	}
	if n < 2 {
		return 0, 0, 0, ErrDegenerateLine
	}

	v := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		v.Set(i, 0, 1)
		v.Set(i, 1, x[i])
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(v)
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, b); err != nil {
		return 0, 0, 0, fmt.Errorf("sternvolmer: line fit: %w", err)
	}

	intercept, slope = sol.AtVec(0), sol.AtVec(1)
	r2 = stat.RSquared(x, y, nil, intercept, slope)
	return slope, intercept, r2, nil
}

// Report writes a plain-text summary of the analysis.
func (a *Analysis) Report(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"Stern-Volmer analysis\n"+
			"  tau0 = %.4g ± %.2g\n"+
			"  kq   = %.4g ± %.2g\n"+
			"  Ksv  = %.4g ± %.2g\n",
		a.Tau0, a.Tau0Err, a.Kq, a.KqErr, a.Ksv, a.KsvErr)
	return err
}
