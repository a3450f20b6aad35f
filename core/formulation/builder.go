package formulation

import "github.com/kilianp07/ucplan/core/milp"

// builder accumulates constraints and remembers the first lookup error so
// that the families can be written without per-term error checks.
type builder struct {
	reg  *Registry
	cons []milp.Constraint
	err  error
}

func newBuilder(reg *Registry) *builder { return &builder{reg: reg} }

func (b *builder) v(k Kind, f, t int) milp.VarID {
	id, err := b.reg.Lookup(k, f, t)
	if err != nil && b.err == nil {
		b.err = err
	}
	return id
}

func (b *builder) h(k Kind, t int) milp.VarID { return b.v(k, -1, t) }

func (b *builder) add(name string, e *milp.Expr, sense milp.Sense, rhs float64) {
	if b.err != nil {
		return
	}
	b.cons = append(b.cons, milp.Constraint{Name: name, Expr: *e, Sense: sense, RHS: rhs})
}
