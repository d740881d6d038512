// Package expr provides the symbolic expression layer quenchfit uses to
// define fluorescence-decay models.
//
// It is deliberately small: exact rational constants, deterministic
// simplification, substitution, and analytic differentiation — enough to
// write a model once, print it as text or LaTeX, and hand the optimizer an
// analytic Jacobian via Compile/CompileGradient. It is not a general
// computer-algebra system and does not try to be one.
package expr

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
)

// ============================================================
// Core interface
// ============================================================

// Expr is an immutable symbolic expression. Constructors simplify eagerly,
// so two equal expressions built in different term orders print the same.
type Expr interface {
	// Simplify returns a canonical-enough form: numeric folding, flat
	// sums and products, stable term ordering.
	Simplify() Expr

	// Subst replaces every occurrence of the named symbol with value.
	Subst(name string, value Expr) Expr

	// Diff returns the partial derivative with respect to the named symbol.
	Diff(name string) Expr

	// Eval reduces the expression to an exact rational if it contains no
	// free symbols. The bool reports success.
	Eval() (*Num, bool)

	Equal(other Expr) bool
	String() string
	LaTeX() string
}

// ============================================================
// Num — exact rational constant
// ============================================================

// Num is an exact rational constant backed by math/big.Rat.
type Num struct{ val *big.Rat }

// Int returns the integer constant n.
func Int(n int64) *Num { return &Num{val: new(big.Rat).SetInt64(n)} }

// Rat returns the exact fraction p/q. It panics on q == 0, which is a
// programmer error, not a data error.
func Rat(p, q int64) *Num {
	if q == 0 {
		panic("expr: zero denominator")
	}
	return &Num{val: new(big.Rat).SetFrac(big.NewInt(p), big.NewInt(q))}
}

// Float returns the exact rational representation of f.
func Float(f float64) *Num {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		panic("expr: non-finite constant")
	}
	return &Num{val: new(big.Rat).SetFloat64(f)}
}

func (n *Num) Simplify() Expr          { return n }
func (n *Num) Subst(string, Expr) Expr { return n }
func (n *Num) Diff(string) Expr        { return Int(0) }
func (n *Num) Eval() (*Num, bool)      { return n, true }
func (n *Num) Equal(other Expr) bool {
	o, ok := other.(*Num)
	return ok && n.val.Cmp(o.val) == 0
}

func (n *Num) Float64() float64 { f, _ := n.val.Float64(); return f }
func (n *Num) IsZero() bool     { return n.val.Sign() == 0 }
func (n *Num) IsOne() bool      { return n.val.Cmp(ratOne) == 0 }
func (n *Num) IsNegOne() bool   { return n.val.Cmp(ratNegOne) == 0 }
func (n *Num) IsInteger() bool  { return n.val.IsInt() }

var (
	ratOne    = new(big.Rat).SetInt64(1)
	ratNegOne = new(big.Rat).SetInt64(-1)
)

func (n *Num) String() string {
	if n.val.IsInt() {
		return n.val.Num().String()
	}
	return n.val.RatString()
}

func (n *Num) LaTeX() string {
	if n.val.IsInt() {
		return n.val.Num().String()
	}
	sign := ""
	v := new(big.Rat).Set(n.val)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}
	return fmt.Sprintf("%s\\frac{%s}{%s}", sign, v.Num().String(), v.Denom().String())
}

func numAdd(a, b *Num) *Num { return &Num{val: new(big.Rat).Add(a.val, b.val)} }
func numMul(a, b *Num) *Num { return &Num{val: new(big.Rat).Mul(a.val, b.val)} }
func numRecip(a *Num) *Num {
	if a.IsZero() {
		panic("expr: division by zero")
	}
	return &Num{val: new(big.Rat).Inv(a.val)}
}

// ============================================================
// Sym — free symbol
// ============================================================

// Sym is a named free symbol (time variable or model parameter).
type Sym struct{ name string }

// Var returns the symbol with the given name.
func Var(name string) *Sym {
	if name == "" {
		panic("expr: empty symbol name")
	}
	return &Sym{name: name}
}

func (s *Sym) Name() string      { return s.name }
func (s *Sym) Simplify() Expr    { return s }
func (s *Sym) String() string    { return s.name }
func (s *Sym) Eval() (*Num, bool) { return nil, false }

func (s *Sym) LaTeX() string {
	// Trailing digits render as subscripts: a1 -> a_{1}.
	i := len(s.name)
	for i > 0 && s.name[i-1] >= '0' && s.name[i-1] <= '9' {
		i--
	}
	if i == 0 || i == len(s.name) {
		return s.name
	}
	return s.name[:i] + "_{" + s.name[i:] + "}"
}

func (s *Sym) Subst(name string, value Expr) Expr {
	if s.name == name {
		return value
	}
	return s
}

func (s *Sym) Diff(name string) Expr {
	if s.name == name {
		return Int(1)
	}
	return Int(0)
}

func (s *Sym) Equal(other Expr) bool {
	o, ok := other.(*Sym)
	return ok && s.name == o.name
}

// ============================================================
// Add — sum of terms
// ============================================================

// Add is a flattened sum of two or more terms.
type Add struct{ terms []Expr }

// Sum builds the simplified sum of the given terms.
func Sum(terms ...Expr) Expr { return (&Add{terms: terms}).Simplify() }

// Terms returns the term slice. Callers must not mutate it.
func (a *Add) Terms() []Expr { return a.terms }

func (a *Add) Simplify() Expr {
	flat := make([]Expr, 0, len(a.terms))
	for _, t := range a.terms {
		switch v := t.Simplify().(type) {
		case *Add:
			flat = append(flat, v.terms...)
		default:
			flat = append(flat, v)
		}
	}

	// Fold numeric terms and collect like symbols by coefficient.
	acc := Int(0)
	coeff := map[string]*Num{}
	order := []string{}
	rest := []Expr{}
	for _, t := range flat {
		switch v := t.(type) {
		case *Num:
			acc = numAdd(acc, v)
		case *Sym:
			if _, seen := coeff[v.name]; !seen {
				order = append(order, v.name)
				coeff[v.name] = Int(0)
			}
			coeff[v.name] = numAdd(coeff[v.name], Int(1))
		default:
			rest = append(rest, t)
		}
	}

	sort.Strings(order)
	out := make([]Expr, 0, len(order)+len(rest)+1)
	for _, name := range order {
		c := coeff[name]
		switch {
		case c.IsZero():
		case c.IsOne():
			out = append(out, Var(name))
		default:
			out = append(out, Prod(c, Var(name)))
		}
	}
	out = append(out, rest...)
	if !acc.IsZero() {
		out = append(out, acc)
	}

	switch len(out) {
	case 0:
		return Int(0)
	case 1:
		return out[0]
	}
	return &Add{terms: out}
}

func (a *Add) String() string {
	parts := make([]string, len(a.terms))
	for i, t := range a.terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}

func (a *Add) LaTeX() string {
	parts := make([]string, len(a.terms))
	for i, t := range a.terms {
		parts[i] = t.LaTeX()
	}
	return strings.Join(parts, " + ")
}

func (a *Add) Subst(name string, value Expr) Expr {
	out := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		out[i] = t.Subst(name, value)
	}
	return Sum(out...)
}

func (a *Add) Diff(name string) Expr {
	out := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		out[i] = t.Diff(name)
	}
	return Sum(out...)
}

func (a *Add) Eval() (*Num, bool) {
	acc := Int(0)
	for _, t := range a.terms {
		v, ok := t.Eval()
		if !ok {
			return nil, false
		}
		acc = numAdd(acc, v)
	}
	return acc, true
}

func (a *Add) Equal(other Expr) bool {
	o, ok := other.(*Add)
	if !ok || len(a.terms) != len(o.terms) {
		return false
	}
	for i := range a.terms {
		if !a.terms[i].Equal(o.terms[i]) {
			return false
		}
	}
	return true
}

// ============================================================
// Mul — product of factors
// ============================================================

// Mul is a flattened product of two or more factors.
type Mul struct{ factors []Expr }

// Prod builds the simplified product of the given factors.
func Prod(factors ...Expr) Expr { return (&Mul{factors: factors}).Simplify() }

// Neg returns -e.
func Neg(e Expr) Expr { return Prod(Int(-1), e) }

// Div returns a/b as a * b^-1.
func Div(a, b Expr) Expr { return Prod(a, Power(b, Int(-1))) }

// Factors returns the factor slice. Callers must not mutate it.
func (m *Mul) Factors() []Expr { return m.factors }

func (m *Mul) Simplify() Expr {
	flat := make([]Expr, 0, len(m.factors))
	for _, f := range m.factors {
		switch v := f.Simplify().(type) {
		case *Mul:
			flat = append(flat, v.factors...)
		default:
			flat = append(flat, v)
		}
	}

	coeff := Int(1)
	rest := []Expr{}
	for _, f := range flat {
		if v, ok := f.(*Num); ok {
			coeff = numMul(coeff, v)
		} else {
			rest = append(rest, f)
		}
	}
	if coeff.IsZero() {
		return Int(0)
	}
	if len(rest) == 0 {
		return coeff
	}

	// Sort by rendered form so output is stable across runs.
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].String() < rest[j].String()
	})

	if coeff.IsOne() {
		if len(rest) == 1 {
			return rest[0]
		}
		return &Mul{factors: rest}
	}
	return &Mul{factors: append([]Expr{coeff}, rest...)}
}

func (m *Mul) String() string {
	parts := make([]string, len(m.factors))
	for i, f := range m.factors {
		if _, isAdd := f.(*Add); isAdd {
			parts[i] = "(" + f.String() + ")"
		} else {
			parts[i] = f.String()
		}
	}
	return strings.Join(parts, "*")
}

func (m *Mul) LaTeX() string {
	parts := make([]string, len(m.factors))
	for i, f := range m.factors {
		if _, isAdd := f.(*Add); isAdd {
			parts[i] = "\\left(" + f.LaTeX() + "\\right)"
		} else {
			parts[i] = f.LaTeX()
		}
	}
	return strings.Join(parts, " ")
}

func (m *Mul) Subst(name string, value Expr) Expr {
	out := make([]Expr, len(m.factors))
	for i, f := range m.factors {
		out[i] = f.Subst(name, value)
	}
	return Prod(out...)
}

// Diff applies the product rule over all factors.
func (m *Mul) Diff(name string) Expr {
	terms := make([]Expr, len(m.factors))
	for i, fi := range m.factors {
		parts := make([]Expr, 0, len(m.factors))
		parts = append(parts, fi.Diff(name))
		for j, fj := range m.factors {
			if j != i {
				parts = append(parts, fj)
			}
		}
		terms[i] = Prod(parts...)
	}
	return Sum(terms...)
}

func (m *Mul) Eval() (*Num, bool) {
	acc := Int(1)
	for _, f := range m.factors {
		v, ok := f.Eval()
		if !ok {
			return nil, false
		}
		acc = numMul(acc, v)
	}
	return acc, true
}

func (m *Mul) Equal(other Expr) bool {
	o, ok := other.(*Mul)
	if !ok || len(m.factors) != len(o.factors) {
		return false
	}
	for i := range m.factors {
		if !m.factors[i].Equal(o.factors[i]) {
			return false
		}
	}
	return true
}

// ============================================================
// Pow — base^exponent
// ============================================================

// Pow is base raised to exponent.
type Pow struct{ base, exp Expr }

// Power builds the simplified power base^exp.
func Power(base, exp Expr) Expr { return (&Pow{base: base, exp: exp}).Simplify() }

// Sqrt returns e^(1/2).
func Sqrt(e Expr) Expr { return Power(e, Rat(1, 2)) }

func (p *Pow) Base() Expr     { return p.base }
func (p *Pow) Exponent() Expr { return p.exp }

func (p *Pow) Simplify() Expr {
	base := p.base.Simplify()
	exp := p.exp.Simplify()

	if en, ok := exp.(*Num); ok {
		if en.IsZero() {
			return Int(1)
		}
		if en.IsOne() {
			return base
		}
	}
	if bn, ok := base.(*Num); ok {
		if bn.IsZero() {
			// 0^0 and 0^negative stay symbolic rather than guessing.
			if en, ok2 := exp.(*Num); ok2 && en.val.Sign() > 0 {
				return Int(0)
			}
			return &Pow{base: base, exp: exp}
		}
		if bn.IsOne() {
			return Int(1)
		}
		if en, ok2 := exp.(*Num); ok2 && en.IsInteger() {
			if e := en.val.Num().Int64(); e >= -16 && e <= 16 {
				return intPow(bn, e)
			}
		}
	}
	// (b^m)^n -> b^(m*n)
	if inner, ok := base.(*Pow); ok {
		return Power(inner.base, Prod(inner.exp, exp))
	}
	return &Pow{base: base, exp: exp}
}

func intPow(b *Num, e int64) *Num {
	neg := e < 0
	if neg {
		e = -e
	}
	out := Int(1)
	for i := int64(0); i < e; i++ {
		out = numMul(out, b)
	}
	if neg {
		out = numRecip(out)
	}
	return out
}

func (p *Pow) String() string {
	bs := p.base.String()
	switch p.base.(type) {
	case *Add, *Mul, *Pow:
		bs = "(" + bs + ")"
	}
	es := p.exp.String()
	switch p.exp.(type) {
	case *Add, *Mul, *Pow:
		es = "(" + es + ")"
	default:
		if n, ok := p.exp.(*Num); ok && (n.val.Sign() < 0 || !n.IsInteger()) {
			es = "(" + es + ")"
		}
	}
	return bs + "^" + es
}

func (p *Pow) LaTeX() string {
	bs := p.base.LaTeX()
	switch p.base.(type) {
	case *Add, *Mul, *Pow:
		bs = "\\left(" + bs + "\\right)"
	}
	return bs + "^{" + p.exp.LaTeX() + "}"
}

func (p *Pow) Subst(name string, value Expr) Expr {
	return Power(p.base.Subst(name, value), p.exp.Subst(name, value))
}

func (p *Pow) Diff(name string) Expr {
	du := p.base.Diff(name)
	if _, expIsNum := p.exp.(*Num); expIsNum {
		// d(u^n) = n * u^(n-1) * du
		return Prod(p.exp, Power(p.base, Sum(p.exp, Int(-1))), du)
	}
	dv := p.exp.Diff(name)
	if _, baseIsNum := p.base.(*Num); baseIsNum {
		// d(c^v) = c^v * ln(c) * dv
		return Prod(Power(p.base, p.exp), Ln(p.base), dv)
	}
	// General case: d(u^v) = u^v * (dv*ln(u) + v*du/u)
	return Prod(
		Power(p.base, p.exp),
		Sum(Prod(dv, Ln(p.base)), Prod(p.exp, du, Power(p.base, Int(-1)))),
	)
}

func (p *Pow) Eval() (*Num, bool) {
	b, ok1 := p.base.Eval()
	e, ok2 := p.exp.Eval()
	if !ok1 || !ok2 {
		return nil, false
	}
	if e.IsInteger() {
		if ev := e.val.Num().Int64(); ev >= -16 && ev <= 16 && !(b.IsZero() && ev <= 0) {
			return intPow(b, ev), true
		}
	}
	f := math.Pow(b.Float64(), e.Float64())
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return Float(f), true
}

func (p *Pow) Equal(other Expr) bool {
	o, ok := other.(*Pow)
	return ok && p.base.Equal(o.base) && p.exp.Equal(o.exp)
}

// ============================================================
// Call — named function application
// ============================================================

// Call applies a named elementary function to a single argument.
type Call struct {
	name string
	arg  Expr
}

func newCall(name string, arg Expr) Expr { return (&Call{name: name, arg: arg}).Simplify() }

func Exp(arg Expr) Expr { return newCall("exp", arg) }
func Ln(arg Expr) Expr  { return newCall("ln", arg) }
func Sin(arg Expr) Expr { return newCall("sin", arg) }
func Cos(arg Expr) Expr { return newCall("cos", arg) }
func Tan(arg Expr) Expr { return newCall("tan", arg) }
func Abs(arg Expr) Expr { return newCall("abs", arg) }

func (c *Call) FuncName() string { return c.name }
func (c *Call) Arg() Expr        { return c.arg }

func (c *Call) Simplify() Expr {
	arg := c.arg.Simplify()
	if n, ok := arg.(*Num); ok {
		switch c.name {
		case "exp":
			if n.IsZero() {
				return Int(1)
			}
		case "ln":
			if n.IsOne() {
				return Int(0)
			}
		case "sin":
			if n.IsZero() {
				return Int(0)
			}
		case "cos":
			if n.IsZero() {
				return Int(1)
			}
		case "tan":
			if n.IsZero() {
				return Int(0)
			}
		case "abs":
			if n.val.Sign() >= 0 {
				return n
			}
			return &Num{val: new(big.Rat).Neg(n.val)}
		}
	}
	// exp(ln(x)) = x and ln(exp(x)) = x.
	if inner, ok := arg.(*Call); ok {
		if c.name == "exp" && inner.name == "ln" {
			return inner.arg
		}
		if c.name == "ln" && inner.name == "exp" {
			return inner.arg
		}
	}
	return &Call{name: c.name, arg: arg}
}

func (c *Call) String() string { return c.name + "(" + c.arg.String() + ")" }

func (c *Call) LaTeX() string {
	switch c.name {
	case "exp", "ln", "sin", "cos", "tan":
		return "\\" + c.name + "\\left(" + c.arg.LaTeX() + "\\right)"
	case "abs":
		return "\\left|" + c.arg.LaTeX() + "\\right|"
	}
	return "\\operatorname{" + c.name + "}\\left(" + c.arg.LaTeX() + "\\right)"
}

func (c *Call) Subst(name string, value Expr) Expr {
	return newCall(c.name, c.arg.Subst(name, value))
}

func (c *Call) Diff(name string) Expr {
	du := c.arg.Diff(name)
	var outer Expr
	switch c.name {
	case "exp":
		outer = Exp(c.arg)
	case "ln":
		outer = Power(c.arg, Int(-1))
	case "sin":
		outer = Cos(c.arg)
	case "cos":
		outer = Neg(Sin(c.arg))
	case "tan":
		outer = Sum(Int(1), Power(Tan(c.arg), Int(2)))
	case "abs":
		// d|u|/du = u/|u|, undefined at u = 0 like ln at 0.
		outer = Prod(c.arg, Power(Abs(c.arg), Int(-1)))
	default:
		panic("expr: no derivative rule for " + c.name)
	}
	return Prod(outer, du)
}

func (c *Call) Eval() (*Num, bool) {
	n, ok := c.arg.Eval()
	if !ok {
		return nil, false
	}
	f, ok := applyFunc(c.name, n.Float64())
	if !ok {
		return nil, false
	}
	return Float(f), true
}

func applyFunc(name string, v float64) (float64, bool) {
	var f float64
	switch name {
	case "exp":
		f = math.Exp(v)
	case "ln":
		f = math.Log(v)
	case "sin":
		f = math.Sin(v)
	case "cos":
		f = math.Cos(v)
	case "tan":
		f = math.Tan(v)
	case "abs":
		f = math.Abs(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (c *Call) Equal(other Expr) bool {
	o, ok := other.(*Call)
	return ok && c.name == o.name && c.arg.Equal(o.arg)
}

// ============================================================
// Free symbols
// ============================================================

// FreeSymbols returns the set of symbol names appearing in e.
func FreeSymbols(e Expr) map[string]struct{} {
	out := map[string]struct{}{}
	collectSymbols(e, out)
	return out
}

func collectSymbols(e Expr, out map[string]struct{}) {
	switch v := e.(type) {
	case *Sym:
		out[v.name] = struct{}{}
	case *Add:
		for _, t := range v.terms {
			collectSymbols(t, out)
		}
	case *Mul:
		for _, f := range v.factors {
			collectSymbols(f, out)
		}
	case *Pow:
		collectSymbols(v.base, out)
		collectSymbols(v.exp, out)
	case *Call:
		collectSymbols(v.arg, out)
	}
}

// ============================================================
// Top-level helpers
// ============================================================

// Subst substitutes name with value and simplifies.
func Subst(e Expr, name string, value Expr) Expr {
	return e.Subst(name, value).Simplify()
}

// Diff returns the simplified partial derivative of e with respect to name.
func Diff(e Expr, name string) Expr {
	return e.Diff(name).Simplify()
}

// Gradient returns the partial derivatives of e with respect to each name.
func Gradient(e Expr, names []string) []Expr {
	out := make([]Expr, len(names))
	for i, n := range names {
		out[i] = Diff(e, n)
	}
	return out
}
