// Package model defines the fluorescence-decay models as symbolic
// expressions and compiles them for the optimizer.
//
// Writing the model symbolically buys two things: the model can be
// printed (text or LaTeX) exactly as fitted, and the Jacobian the
// optimizer needs is the analytic derivative of the same tree, not a
// finite-difference approximation.
package model

import (
	"fmt"

	"github.com/kmarkley/quenchfit/expr"
)

// TimeVar is the reserved symbol name for the independent variable.
const TimeVar = "t"

// Model is a compiled decay model: intensity as a function of time and a
// fixed, ordered parameter vector.
type Model struct {
	// Name identifies the model in reports.
	Name string

	// Params are the parameter names in vector order.
	Params []string

	// Tree is the symbolic form, with TimeVar free.
	Tree expr.Expr

	eval EvalFunc
	grad []EvalFunc
}

// EvalFunc evaluates intensity at time t for the given parameter vector.
type EvalFunc func(t float64, params []float64) float64

// New compiles a symbolic intensity expression into a Model. The
// expression may reference TimeVar and the named parameters, nothing else.
func New(name string, tree expr.Expr, params []string) (*Model, error) {
	for _, p := range params {
		if p == TimeVar {
			return nil, fmt.Errorf("model %s: parameter may not shadow %q", name, TimeVar)
		}
	}
	vars := append([]string{TimeVar}, params...)
	f, err := expr.Compile(tree, vars)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}

	// The gradient skips the time variable: the optimizer differentiates
	// with respect to parameters only.
	grad := make([]expr.EvalFunc, len(params))
	for i, p := range params {
		g, err := expr.Compile(expr.Diff(tree, p), vars)
		if err != nil {
			return nil, fmt.Errorf("model %s: gradient wrt %s: %w", name, p, err)
		}
		grad[i] = g
	}

	m := &Model{Name: name, Params: params, Tree: tree}
	m.eval = func(t float64, params []float64) float64 {
		return f(packArgs(t, params))
	}
	m.grad = make([]EvalFunc, len(grad))
	for i, g := range grad {
		g := g
		m.grad[i] = func(t float64, params []float64) float64 {
			return g(packArgs(t, params))
		}
	}
	return m, nil
}

func packArgs(t float64, params []float64) []float64 {
	args := make([]float64, 1+len(params))
	args[0] = t
	copy(args[1:], params)
	return args
}

// NumParams returns the parameter count.
func (m *Model) NumParams() int { return len(m.Params) }

// Eval returns the model intensity at time t. It panics if params has the
// wrong length, which is a programmer error.
func (m *Model) Eval(t float64, params []float64) float64 {
	m.checkLen(params)
	return m.eval(t, params)
}

// Grad writes the partial derivatives with respect to each parameter at
// time t into dst, which must have NumParams entries.
func (m *Model) Grad(dst []float64, t float64, params []float64) {
	m.checkLen(params)
	if len(dst) != len(m.Params) {
		panic("model: gradient destination length mismatch")
	}
	for i, g := range m.grad {
		dst[i] = g(t, params)
	}
}

func (m *Model) checkLen(params []float64) {
	if len(params) != len(m.Params) {
		panic(fmt.Sprintf("model %s: got %d parameters, want %d", m.Name, len(params), len(m.Params)))
	}
}

// String returns the model equation in plain text.
func (m *Model) String() string {
	return "I(t) = " + m.Tree.String()
}

// LaTeX returns the model equation for typeset reports.
func (m *Model) LaTeX() string {
	return "I(t) = " + m.Tree.LaTeX()
}

// SingleExp builds the single-exponential decay with baseline:
//
//	I(t) = a * exp(-t/tau) + c
//
// with parameters [a, tau, c].
func SingleExp() (*Model, error) {
	t := expr.Var(TimeVar)
	tree := expr.Sum(
		expr.Prod(expr.Var("a"), expr.Exp(expr.Neg(expr.Div(t, expr.Var("tau"))))),
		expr.Var("c"),
	)
	return New("single-exp", tree, []string{"a", "tau", "c"})
}

// QuenchedExp builds the quenched decay for one concentration q:
//
//	I(t) = a * exp(-t * (1/tau0 + kq*q)) + c
//
// with parameters [tau0, kq, c, a]. The decay rate is the unquenched rate
// 1/tau0 plus the bimolecular quenching term kq*q, which is what ties the
// five curves of a concentration series to shared tau0 and kq.
func QuenchedExp(q float64) (*Model, error) {
	t := expr.Var(TimeVar)
	rate := expr.Sum(
		expr.Power(expr.Var("tau0"), expr.Int(-1)),
		expr.Prod(expr.Float(q), expr.Var("kq")),
	)
	tree := expr.Sum(
		expr.Prod(expr.Var("a"), expr.Exp(expr.Neg(expr.Prod(t, rate)))),
		expr.Var("c"),
	)
	return New(fmt.Sprintf("quenched-exp(q=%g)", q), tree, []string{"tau0", "kq", "c", "a"})
}
