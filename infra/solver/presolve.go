package solver

import (
	"errors"
	"math"

	"github.com/kilianp07/ucplan/core/milp"
)

var (
	errNodeInfeasible = errors.New("node infeasible")
	errNodeUnbounded  = errors.New("node unbounded")
)

// reduced is a node relaxation after presolve. Variables are either fixed
// (col < 0) or mapped to an LP column shifted by their lower bound.
type reduced struct {
	lower, upper []float64
	col          []int
	vars         []milp.VarID
	rows         []int
}

func (r *reduced) fixed(v milp.VarID) bool { return r.col[v] < 0 }

// presolve tightens the node bounds until no singleton or empty row is left
// to exploit, then drops the rows that became redundant.
//
//gocyclo:ignore
func presolve(m *milp.Model, lower, upper []float64, tol float64) (*reduced, error) {
	n := len(m.Vars)
	lb := append([]float64(nil), lower...)
	ub := append([]float64(nil), upper...)
	isFixed := func(j milp.VarID) bool { return ub[j]-lb[j] <= tol }
	integral := func(j milp.VarID) bool { return m.Vars[j].Domain.IsIntegral() }

	tighten := func(j milp.VarID, lo, hi float64) (bool, error) {
		if integral(j) {
			lo = math.Ceil(lo - tol)
			hi = math.Floor(hi + tol)
		}
		changed := false
		if lo > lb[j]+tol {
			lb[j], changed = lo, true
		}
		if hi < ub[j]-tol {
			ub[j], changed = hi, true
		}
		if lb[j] > ub[j]+tol {
			return changed, errNodeInfeasible
		}
		if ub[j] < lb[j] {
			ub[j] = lb[j]
		}
		return changed, nil
	}

	active := make([]bool, len(m.Constraints))
	for i := range active {
		active[i] = true
	}
	for j := range lb {
		if lb[j] > ub[j]+tol {
			return nil, errNodeInfeasible
		}
	}

	for pass := 0; pass < 20; pass++ {
		changed := false
		for i, c := range m.Constraints {
			if !active[i] {
				continue
			}
			rhs := c.RHS - c.Expr.Constant
			free := -1
			var coef float64
			count := 0
			for _, t := range c.Expr.Terms {
				if isFixed(t.Var) {
					rhs -= t.Coef * lb[t.Var]
					continue
				}
				if count == 0 || t.Var != milp.VarID(free) {
					count++
				}
				free = int(t.Var)
				coef += t.Coef
			}
			if count == 1 && math.Abs(coef) <= tol {
				count = 0
			}
			switch {
			case count == 0:
				if !constantHolds(c.Sense, rhs, tol) {
					return nil, errNodeInfeasible
				}
				active[i] = false
			case count == 1:
				lo, hi := singletonBounds(c.Sense, coef, rhs/coef)
				ch, err := tighten(milp.VarID(free), lo, hi)
				if err != nil {
					return nil, err
				}
				changed = changed || ch
				active[i] = false
			}
		}
		if !changed {
			break
		}
	}

	// Variables left in no active row sit at the bound their cost prefers.
	used := make([]bool, n)
	for i, c := range m.Constraints {
		if !active[i] {
			continue
		}
		for _, t := range c.Expr.Terms {
			used[t.Var] = true
		}
	}
	cost := make([]float64, n)
	for _, t := range m.Objective.Terms {
		cost[t.Var] += t.Coef
	}
	for j := range used {
		v := milp.VarID(j)
		if used[j] || isFixed(v) {
			continue
		}
		if cost[j] < 0 {
			if math.IsInf(ub[j], 1) {
				return nil, errNodeUnbounded
			}
			lb[j] = ub[j]
		} else {
			ub[j] = lb[j]
		}
	}

	r := &reduced{lower: lb, upper: ub, col: make([]int, n)}
	for j := range r.col {
		v := milp.VarID(j)
		if isFixed(v) {
			r.col[j] = -1
			ub[j] = lb[j]
			continue
		}
		r.col[j] = len(r.vars)
		r.vars = append(r.vars, v)
	}
	for i := range m.Constraints {
		if active[i] {
			r.rows = append(r.rows, i)
		}
	}
	return r, nil
}

func constantHolds(s milp.Sense, rhs, tol float64) bool {
	switch s {
	case milp.LessEq:
		return rhs >= -tol
	case milp.GreaterEq:
		return rhs <= tol
	default:
		return math.Abs(rhs) <= tol
	}
}

// singletonBounds converts coef*x <sense> rhs into bounds on x, where q is
// rhs/coef.
func singletonBounds(s milp.Sense, coef, q float64) (float64, float64) {
	switch {
	case s == milp.Equal:
		return q, q
	case (s == milp.LessEq) == (coef > 0):
		return math.Inf(-1), q
	default:
		return q, math.Inf(1)
	}
}
