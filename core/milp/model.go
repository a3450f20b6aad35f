package milp

import (
	"errors"
	"fmt"
	"math"
)

// VarID identifies a variable inside a Model. IDs are dense and start at 0.
type VarID int

// Domain is the value domain of a variable.
type Domain int

const (
	Continuous Domain = iota
	Integer
	Binary
)

func (d Domain) String() string {
	switch d {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// IsIntegral reports whether the domain requires integer values.
func (d Domain) IsIntegral() bool { return d == Integer || d == Binary }

// Var is a decision variable with static bounds.
type Var struct {
	ID     VarID
	Name   string
	Domain Domain
	Lower  float64
	Upper  float64
}

// Term is a coefficient applied to a variable.
type Term struct {
	Var  VarID
	Coef float64
}

// Expr is a linear expression: sum of terms plus a constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// NewExpr returns an empty expression.
func NewExpr() *Expr { return &Expr{} }

// Add appends coef*v to the expression. Zero coefficients are skipped.
func (e *Expr) Add(v VarID, coef float64) *Expr {
	if coef == 0 {
		return e
	}
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

// AddConstant adds c to the constant part of the expression.
func (e *Expr) AddConstant(c float64) *Expr {
	e.Constant += c
	return e
}

// Eval evaluates the expression for the given variable values.
func (e Expr) Eval(values []float64) float64 {
	s := e.Constant
	for _, t := range e.Terms {
		s += t.Coef * values[t.Var]
	}
	return s
}

// Sense is the relation of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return "?"
	}
}

// Constraint is Expr <sense> RHS.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Slack returns how far the constraint is from being violated for the given
// values. A negative slack means the constraint is violated; for equalities
// the absolute deviation is returned negated.
func (c Constraint) Slack(values []float64) float64 {
	lhs := c.Expr.Eval(values)
	switch c.Sense {
	case LessEq:
		return c.RHS - lhs
	case GreaterEq:
		return lhs - c.RHS
	default:
		return -math.Abs(lhs - c.RHS)
	}
}

// Model is a mixed-integer linear program in minimisation form.
type Model struct {
	Vars        []Var
	Objective   Expr
	Constraints []Constraint

	names map[string]VarID
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{names: make(map[string]VarID)}
}

// ErrDuplicateVar is returned when a variable name is declared twice.
var ErrDuplicateVar = errors.New("milp: duplicate variable")

// ErrInvalidBounds is returned for bounds that cannot describe a domain.
var ErrInvalidBounds = errors.New("milp: invalid bounds")

// AddVar declares a variable and returns its identifier.
func (m *Model) AddVar(name string, dom Domain, lower, upper float64) (VarID, error) {
	if m.names == nil {
		m.names = make(map[string]VarID)
	}
	if _, ok := m.names[name]; ok {
		return -1, fmt.Errorf("%w: %s", ErrDuplicateVar, name)
	}
	if dom == Binary {
		lower = math.Max(lower, 0)
		upper = math.Min(upper, 1)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || lower > upper || math.IsInf(lower, 0) {
		return -1, fmt.Errorf("%w: %s [%v, %v]", ErrInvalidBounds, name, lower, upper)
	}
	id := VarID(len(m.Vars))
	m.Vars = append(m.Vars, Var{ID: id, Name: name, Domain: dom, Lower: lower, Upper: upper})
	m.names[name] = id
	return id, nil
}

// Lookup returns the variable with the given name.
func (m *Model) Lookup(name string) (Var, bool) {
	id, ok := m.names[name]
	if !ok {
		return Var{}, false
	}
	return m.Vars[id], true
}

// AddConstraint appends a constraint to the model.
func (m *Model) AddConstraint(c Constraint) {
	m.Constraints = append(m.Constraints, c)
}

// NumIntegral returns the number of integer or binary variables.
func (m *Model) NumIntegral() int {
	n := 0
	for _, v := range m.Vars {
		if v.Domain.IsIntegral() {
			n++
		}
	}
	return n
}

// Validate checks that every term references a declared variable.
func (m *Model) Validate() error {
	n := VarID(len(m.Vars))
	check := func(where string, e Expr) error {
		for _, t := range e.Terms {
			if t.Var < 0 || t.Var >= n {
				return fmt.Errorf("milp: %s references unknown variable %d", where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("milp: %s has non-finite coefficient", where)
			}
		}
		return nil
	}
	if err := check("objective", m.Objective); err != nil {
		return err
	}
	for _, c := range m.Constraints {
		if err := check(c.Name, c.Expr); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("milp: %s has non-finite right-hand side", c.Name)
		}
	}
	return nil
}

// Violation describes a constraint or bound not satisfied by a point.
type Violation struct {
	Name   string
	Amount float64
}

// Check returns every bound, integrality or constraint violation larger than
// tol for the given values.
func (m *Model) Check(values []float64, tol float64) []Violation {
	var out []Violation
	for _, v := range m.Vars {
		x := values[v.ID]
		if x < v.Lower-tol {
			out = append(out, Violation{Name: v.Name + " lower", Amount: v.Lower - x})
		}
		if x > v.Upper+tol {
			out = append(out, Violation{Name: v.Name + " upper", Amount: x - v.Upper})
		}
		if v.Domain.IsIntegral() {
			if d := math.Abs(x - math.Round(x)); d > tol {
				out = append(out, Violation{Name: v.Name + " integrality", Amount: d})
			}
		}
	}
	for _, c := range m.Constraints {
		if s := c.Slack(values); s < -tol {
			out = append(out, Violation{Name: c.Name, Amount: -s})
		}
	}
	return out
}
