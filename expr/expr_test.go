package expr_test

import (
	"strings"
	"testing"

	"github.com/kmarkley/quenchfit/expr"
)

// ============================================================
// Num tests
// ============================================================

func TestNum_Integer(t *testing.T) {
	n := expr.Int(42)
	if n.String() != "42" {
		t.Errorf("want 42, got %s", n.String())
	}
}

func TestNum_Rational(t *testing.T) {
	n := expr.Rat(1, 3)
	if n.String() != "1/3" {
		t.Errorf("want 1/3, got %s", n.String())
	}
}

func TestNum_LaTeX_Rational(t *testing.T) {
	n := expr.Rat(2, 5)
	if n.LaTeX() != `\frac{2}{5}` {
		t.Errorf("want \\frac{2}{5}, got %s", n.LaTeX())
	}
}

func TestNum_Diff_IsZero(t *testing.T) {
	d := expr.Diff(expr.Int(5), "x")
	if d.String() != "0" {
		t.Errorf("d/dx(5) should be 0, got %s", d.String())
	}
}

// ============================================================
// Sym tests
// ============================================================

func TestSym_Subst_Match(t *testing.T) {
	got := expr.Subst(expr.Var("x"), "x", expr.Int(3))
	if got.String() != "3" {
		t.Errorf("want 3, got %s", got.String())
	}
}

func TestSym_Subst_NoMatch(t *testing.T) {
	got := expr.Subst(expr.Var("x"), "y", expr.Int(3))
	if got.String() != "x" {
		t.Errorf("want x, got %s", got.String())
	}
}

func TestSym_Diff(t *testing.T) {
	if expr.Diff(expr.Var("x"), "x").String() != "1" {
		t.Error("d/dx(x) should be 1")
	}
	if expr.Diff(expr.Var("y"), "x").String() != "0" {
		t.Error("d/dx(y) should be 0")
	}
}

func TestSym_LaTeX_Subscript(t *testing.T) {
	if got := expr.Var("a1").LaTeX(); got != "a_{1}" {
		t.Errorf("want a_{1}, got %s", got)
	}
	if got := expr.Var("tau0").LaTeX(); got != "tau_{0}" {
		t.Errorf("want tau_{0}, got %s", got)
	}
}

// ============================================================
// Sum tests
// ============================================================

func TestSum_Simple(t *testing.T) {
	e := expr.Sum(expr.Var("x"), expr.Int(3))
	if e.String() != "x + 3" {
		t.Errorf("want 'x + 3', got %s", e.String())
	}
}

func TestSum_CollapseToZero(t *testing.T) {
	e := expr.Sum(expr.Int(1), expr.Int(-1))
	if e.String() != "0" {
		t.Errorf("want 0, got %s", e.String())
	}
}

func TestSum_LikeTerms(t *testing.T) {
	e := expr.Sum(expr.Var("x"), expr.Var("x"))
	if e.String() != "2*x" {
		t.Errorf("want '2*x', got %s", e.String())
	}
}

func TestSum_SubstEvaluates(t *testing.T) {
	// 2x + 3 at x=5 is 13.
	linear := expr.Sum(expr.Prod(expr.Int(2), expr.Var("x")), expr.Int(3))
	got := expr.Subst(linear, "x", expr.Int(5))
	if got.String() != "13" {
		t.Errorf("want 13, got %s", got.String())
	}
}

// ============================================================
// Prod tests
// ============================================================

func TestProd_ZeroCollapse(t *testing.T) {
	e := expr.Prod(expr.Int(0), expr.Var("x"))
	if e.String() != "0" {
		t.Errorf("0*x should be 0, got %s", e.String())
	}
}

func TestProd_OneElide(t *testing.T) {
	e := expr.Prod(expr.Int(1), expr.Var("x"))
	if e.String() != "x" {
		t.Errorf("1*x should be x, got %s", e.String())
	}
}

func TestProd_NumericFold(t *testing.T) {
	e := expr.Prod(expr.Rat(1, 2), expr.Int(4), expr.Var("x"))
	if e.String() != "2*x" {
		t.Errorf("(1/2)*4*x should be 2*x, got %s", e.String())
	}
}

// ============================================================
// Power tests
// ============================================================

func TestPower_ZeroExp(t *testing.T) {
	e := expr.Power(expr.Var("x"), expr.Int(0))
	if e.String() != "1" {
		t.Errorf("x^0 should be 1, got %s", e.String())
	}
}

func TestPower_OneExp(t *testing.T) {
	e := expr.Power(expr.Var("x"), expr.Int(1))
	if e.String() != "x" {
		t.Errorf("x^1 should be x, got %s", e.String())
	}
}

func TestPower_NumericEval(t *testing.T) {
	e := expr.Power(expr.Int(2), expr.Int(3))
	if e.String() != "8" {
		t.Errorf("2^3 should be 8, got %s", e.String())
	}
}

func TestPower_Diff_PowerRule(t *testing.T) {
	// d/dx(x^3) = 3*x^2
	d := expr.Diff(expr.Power(expr.Var("x"), expr.Int(3)), "x")
	if d.String() != "3*x^2" {
		t.Errorf("d/dx(x^3) should be 3*x^2, got %s", d.String())
	}
}

func TestPower_NegExp_String(t *testing.T) {
	e := expr.Power(expr.Var("x"), expr.Int(-1))
	if e.String() != "x^(-1)" {
		t.Errorf("want x^(-1), got %s", e.String())
	}
}

// ============================================================
// Call tests
// ============================================================

func TestExp_Diff(t *testing.T) {
	d := expr.Diff(expr.Exp(expr.Var("x")), "x")
	if d.String() != "exp(x)" {
		t.Errorf("d/dx(exp(x)) should be exp(x), got %s", d.String())
	}
}

func TestExp_ChainRule(t *testing.T) {
	// d/dt exp(-t/tau) = -1/tau * exp(-t/tau): the decay-model derivative.
	tt := expr.Var("t")
	tau := expr.Var("tau")
	e := expr.Exp(expr.Neg(expr.Div(tt, tau)))
	d := expr.Diff(e, "t")
	s := d.String()
	if !strings.Contains(s, "exp") || !strings.Contains(s, "tau") {
		t.Errorf("chain rule result should reference exp and tau, got %s", s)
	}
}

func TestLn_Exp_Cancel(t *testing.T) {
	e := expr.Ln(expr.Exp(expr.Var("x")))
	if e.String() != "x" {
		t.Errorf("ln(exp(x)) should be x, got %s", e.String())
	}
}

func TestSin_Diff(t *testing.T) {
	d := expr.Diff(expr.Sin(expr.Var("x")), "x")
	if d.String() != "cos(x)" {
		t.Errorf("d/dx(sin(x)) should be cos(x), got %s", d.String())
	}
}

func TestCos_Diff(t *testing.T) {
	d := expr.Diff(expr.Cos(expr.Var("x")), "x")
	if !strings.Contains(d.String(), "sin") {
		t.Errorf("d/dx(cos(x)) should contain sin, got %s", d.String())
	}
}

func TestExp_ZeroArg(t *testing.T) {
	if expr.Exp(expr.Int(0)).String() != "1" {
		t.Error("exp(0) should fold to 1")
	}
}

func TestAbs_Diff(t *testing.T) {
	d := expr.Diff(expr.Abs(expr.Var("x")), "x")
	if got := expr.Subst(d, "x", expr.Int(-2)).String(); got != "-1" {
		t.Errorf("d/dx|x| at x=-2 should be -1, got %s", got)
	}
	if got := expr.Subst(d, "x", expr.Int(3)).String(); got != "1" {
		t.Errorf("d/dx|x| at x=3 should be 1, got %s", got)
	}
}

// ============================================================
// Eval tests
// ============================================================

func TestEval_Rational(t *testing.T) {
	e := expr.Sum(expr.Rat(1, 3), expr.Rat(1, 6))
	n, ok := e.Eval()
	if !ok {
		t.Fatal("Eval should succeed on a constant expression")
	}
	if n.String() != "1/2" {
		t.Errorf("1/3 + 1/6 should be 1/2, got %s", n.String())
	}
}

func TestEval_FreeSymbolFails(t *testing.T) {
	if _, ok := expr.Var("x").Eval(); ok {
		t.Error("Eval of a free symbol should fail")
	}
}

// ============================================================
// FreeSymbols tests
// ============================================================

func TestFreeSymbols(t *testing.T) {
	e := expr.Sum(expr.Var("x"), expr.Prod(expr.Var("y"), expr.Int(2)))
	syms := expr.FreeSymbols(e)
	if len(syms) != 2 {
		t.Fatalf("expected 2 free symbols, got %d", len(syms))
	}
	if _, ok := syms["x"]; !ok {
		t.Error("expected x in free symbols")
	}
	if _, ok := syms["y"]; !ok {
		t.Error("expected y in free symbols")
	}
}

// ============================================================
// Determinism test
// ============================================================

func TestDeterminism(t *testing.T) {
	build := func() string {
		return expr.Sum(expr.Var("z"), expr.Var("a"), expr.Var("m"), expr.Int(1)).String()
	}
	first := build()
	for i := 0; i < 10; i++ {
		if got := build(); got != first {
			t.Fatalf("non-deterministic output on iteration %d: %s != %s", i, got, first)
		}
	}
}
