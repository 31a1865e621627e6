package solver

import (
	"errors"
	"fmt"
)

// Var identifies a variable of a Model.
type Var int

// Lit returns the positive literal of a boolean variable.
func (v Var) Lit() Literal { return Literal{Var: v} }

// Not returns the negated literal of a boolean variable.
func (v Var) Not() Literal { return Literal{Var: v, Negated: true} }

// Literal is a boolean variable or its negation.
type Literal struct {
	Var     Var
	Negated bool
}

// Not returns the opposite literal.
func (l Literal) Not() Literal {
	l.Negated = !l.Negated
	return l
}

// Term is coef*var.
type Term struct {
	Var  Var
	Coef int64
}

// LinearExpr is a weighted sum of variables plus a constant.
type LinearExpr struct {
	Terms    []Term
	Constant int64
}

// Sum returns the expression v1 + v2 + ... .
func Sum(vars ...Var) LinearExpr {
	e := LinearExpr{Terms: make([]Term, 0, len(vars))}
	for _, v := range vars {
		e.Terms = append(e.Terms, Term{Var: v, Coef: 1})
	}
	return e
}

// AddTerm appends coef*v to the expression in place.
func (e *LinearExpr) AddTerm(v Var, coef int64) *LinearExpr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

// AddConstant adds c to the expression in place.
func (e *LinearExpr) AddConstant(c int64) *LinearExpr {
	e.Constant += c
	return e
}

// Interval identifies an interval of a Model.
type Interval int

type varDef struct {
	lo, hi int64
	name   string
}

type intervalDef struct {
	start    Var
	size     int64
	presence Literal
	optional bool
	name     string
}

type linearDef struct {
	terms   []Term
	lo, hi  int64
	hasLo   bool
	hasHi   bool
	enforce []Literal
}

type moduloDef struct {
	target Var
	x      Var
	offset int64
	mod    int64
}

// Model collects variables, constraints and the objective of a problem.
// Construction errors are accumulated and reported by Validate.
type Model struct {
	vars       []varDef
	intervals  []intervalDef
	linears    []linearDef
	modulos    []moduloDef
	noOverlaps [][]Interval

	objective LinearExpr
	maximize  bool
	hasObj    bool

	errs []error
}

// NewModel returns an empty model.
func NewModel() *Model { return &Model{} }

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.vars) }

// Name returns the name given to v at creation.
func (m *Model) Name(v Var) string {
	if int(v) < 0 || int(v) >= len(m.vars) {
		return fmt.Sprintf("var#%d", v)
	}
	return m.vars[v].name
}

// Bounds returns the declared domain of v.
func (m *Model) Bounds(v Var) (int64, int64) { return m.vars[v].lo, m.vars[v].hi }

func (m *Model) fail(format string, args ...any) {
	m.errs = append(m.errs, fmt.Errorf(format, args...))
}

func (m *Model) checkVar(v Var) bool {
	if int(v) < 0 || int(v) >= len(m.vars) {
		m.fail("unknown variable %d", v)
		return false
	}
	return true
}

func (m *Model) checkLiteral(l Literal) bool {
	if !m.checkVar(l.Var) {
		return false
	}
	d := m.vars[l.Var]
	if d.lo < 0 || d.hi > 1 {
		m.fail("variable %s used as literal is not boolean", d.name)
		return false
	}
	return true
}

// NewIntVar creates an integer variable with domain [lo, hi].
func (m *Model) NewIntVar(lo, hi int64, name string) Var {
	if lo > hi {
		m.fail("variable %s: empty domain [%d,%d]", name, lo, hi)
	}
	m.vars = append(m.vars, varDef{lo: lo, hi: hi, name: name})
	return Var(len(m.vars) - 1)
}

// NewBoolVar creates a 0/1 variable.
func (m *Model) NewBoolVar(name string) Var { return m.NewIntVar(0, 1, name) }

// NewConstant creates a variable fixed to value.
func (m *Model) NewConstant(value int64) Var {
	return m.NewIntVar(value, value, fmt.Sprintf("const_%d", value))
}

// NewOptionalInterval creates the interval [start, start+size) which is
// present iff presence is true.
func (m *Model) NewOptionalInterval(start Var, size int64, presence Literal, name string) Interval {
	m.checkVar(start)
	m.checkLiteral(presence)
	if size < 0 {
		m.fail("interval %s: negative size %d", name, size)
	}
	m.intervals = append(m.intervals, intervalDef{start: start, size: size, presence: presence, optional: true, name: name})
	return Interval(len(m.intervals) - 1)
}

// NewFixedInterval creates an always present interval [start, start+size).
func (m *Model) NewFixedInterval(start, size int64, name string) Interval {
	if size < 0 {
		m.fail("interval %s: negative size %d", name, size)
	}
	v := m.NewIntVar(start, start, name+"_start")
	m.intervals = append(m.intervals, intervalDef{start: v, size: size, name: name})
	return Interval(len(m.intervals) - 1)
}

// AddNoOverlap forbids any two present intervals of the list to intersect.
func (m *Model) AddNoOverlap(intervals ...Interval) {
	for _, iv := range intervals {
		if int(iv) < 0 || int(iv) >= len(m.intervals) {
			m.fail("unknown interval %d", iv)
			return
		}
	}
	if len(intervals) < 2 {
		return
	}
	m.noOverlaps = append(m.noOverlaps, append([]Interval(nil), intervals...))
}

// Constraint is a handle on a linear constraint, used to add enforcement literals.
type Constraint struct {
	m   *Model
	idx int
}

// OnlyEnforceIf makes the constraint hold only when all literals are true.
func (c *Constraint) OnlyEnforceIf(lits ...Literal) *Constraint {
	if c == nil || c.idx < 0 {
		return c
	}
	for _, l := range lits {
		if c.m.checkLiteral(l) {
			c.m.linears[c.idx].enforce = append(c.m.linears[c.idx].enforce, l)
		}
	}
	return c
}

func (m *Model) addLinear(expr LinearExpr, lo, hi int64, hasLo, hasHi bool) *Constraint {
	terms := make([]Term, 0, len(expr.Terms))
	for _, t := range expr.Terms {
		if !m.checkVar(t.Var) {
			return &Constraint{m: m, idx: -1}
		}
		if t.Coef != 0 {
			terms = append(terms, t)
		}
	}
	def := linearDef{terms: terms, hasLo: hasLo, hasHi: hasHi}
	if hasLo {
		def.lo = lo - expr.Constant
	}
	if hasHi {
		def.hi = hi - expr.Constant
	}
	m.linears = append(m.linears, def)
	return &Constraint{m: m, idx: len(m.linears) - 1}
}

// AddLinear constrains lo <= expr <= hi.
func (m *Model) AddLinear(expr LinearExpr, lo, hi int64) *Constraint {
	return m.addLinear(expr, lo, hi, true, true)
}

// AddLessOrEqual constrains expr <= rhs.
func (m *Model) AddLessOrEqual(expr LinearExpr, rhs int64) *Constraint {
	return m.addLinear(expr, 0, rhs, false, true)
}

// AddGreaterOrEqual constrains expr >= rhs.
func (m *Model) AddGreaterOrEqual(expr LinearExpr, rhs int64) *Constraint {
	return m.addLinear(expr, rhs, 0, true, false)
}

// AddEquality constrains expr == rhs.
func (m *Model) AddEquality(expr LinearExpr, rhs int64) *Constraint {
	return m.addLinear(expr, rhs, rhs, true, true)
}

// AddModuloEquality constrains target == expr mod mod, where expr must be a
// single variable with coefficient 1 plus a constant. The modulo is floored,
// so target always lies in [0, mod).
func (m *Model) AddModuloEquality(target Var, expr LinearExpr, mod int64) {
	if !m.checkVar(target) {
		return
	}
	if mod <= 0 {
		m.fail("modulo must be positive, got %d", mod)
		return
	}
	if len(expr.Terms) != 1 || expr.Terms[0].Coef != 1 {
		m.fail("modulo expression on %s must be var + constant", m.Name(target))
		return
	}
	if !m.checkVar(expr.Terms[0].Var) {
		return
	}
	m.modulos = append(m.modulos, moduloDef{target: target, x: expr.Terms[0].Var, offset: expr.Constant, mod: mod})
}

// Maximize sets the objective to maximize expr.
func (m *Model) Maximize(expr LinearExpr) { m.setObjective(expr, true) }

// Minimize sets the objective to minimize expr.
func (m *Model) Minimize(expr LinearExpr) { m.setObjective(expr, false) }

func (m *Model) setObjective(expr LinearExpr, maximize bool) {
	for _, t := range expr.Terms {
		if !m.checkVar(t.Var) {
			return
		}
	}
	m.objective = LinearExpr{Terms: append([]Term(nil), expr.Terms...), Constant: expr.Constant}
	m.maximize = maximize
	m.hasObj = true
}

// ErrModelInvalid is returned for models that were built with errors.
var ErrModelInvalid = errors.New("invalid model")

// Validate reports construction errors.
func (m *Model) Validate() error {
	if len(m.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrModelInvalid, errors.Join(m.errs...))
}
