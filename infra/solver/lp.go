package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/ucplan/core/milp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpFailed
	lpInterrupted
)

type relaxation struct {
	status    lpStatus
	objective float64
	values    []float64
	err       error
}

// fallbackColumns bounds the reduced LPs handed to gonum's simplex when the
// tableau fails.
const fallbackColumns = 200

var (
	// solveLP and simplexFunc point to the LP routines. Tests override them
	// to inject failures.
	solveLP     = (*tableau).solve
	simplexFunc = lp.Simplex
)

// solveRelaxation presolves the node, installs the tightened bounds on the
// shared tableau and reoptimizes from the basis left by the previous node.
// When the tableau fails on a small node, the reduced LP is solved again
// with gonum's simplex and the tableau restarts from its logical basis.
func solveRelaxation(ctx context.Context, m *milp.Model, t *tableau, lower, upper []float64, cfg Config) relaxation {
	r, err := presolve(m, lower, upper, cfg.IntegralityTolerance)
	switch {
	case errors.Is(err, errNodeInfeasible):
		return relaxation{status: lpInfeasible}
	case errors.Is(err, errNodeUnbounded):
		return relaxation{status: lpUnbounded}
	case err != nil:
		return relaxation{status: lpFailed, err: err}
	}

	t.setBounds(r.lower, r.upper)
	st, err := runTableau(ctx, t)
	switch st {
	case lpOptimal:
		values := t.values(r.lower, r.upper)
		return relaxation{status: lpOptimal, objective: m.Objective.Eval(values), values: values}
	case lpFailed:
		t.reset()
		if len(r.vars) <= fallbackColumns {
			return solveFallback(m, r, cfg)
		}
		return relaxation{status: lpFailed, err: err}
	default:
		return relaxation{status: st, err: err}
	}
}

func runTableau(ctx context.Context, t *tableau) (st lpStatus, err error) {
	defer func() {
		if p := recover(); p != nil {
			st, err = lpFailed, fmt.Errorf("solver: simplex panic: %v", p)
		}
	}()
	return solveLP(t, ctx)
}

// solveFallback solves the presolved LP in standard form: every variable is
// shifted by its lower bound, finite upper bounds become rows with their own
// slack and inequalities get a slack.
func solveFallback(m *milp.Model, r *reduced, cfg Config) relaxation {
	values := append([]float64(nil), r.lower...)
	if len(r.vars) > 0 {
		y, st, err := solveReduced(m, r, cfg.SimplexTolerance, false)
		if errors.Is(err, lp.ErrSingular) {
			y, st, err = solveReduced(m, r, cfg.SimplexTolerance, true)
		}
		if st != lpOptimal {
			return relaxation{status: st, err: err}
		}
		for k, v := range r.vars {
			values[v] = clamp(r.lower[v]+y[k], r.lower[v], r.upper[v])
		}
	}
	return relaxation{status: lpOptimal, objective: m.Objective.Eval(values), values: values}
}

type row struct {
	coef  map[int]float64
	slack float64
	rhs   float64
}

// solveReduced builds and solves the standard-form LP. With splitEq every
// equality is written as two inequalities, which keeps the constraint
// matrix full rank when presolve left duplicate rows behind.
func solveReduced(m *milp.Model, r *reduced, tol float64, splitEq bool) (y []float64, st lpStatus, err error) {
	nv := len(r.vars)
	var rows []row
	for k, v := range r.vars {
		if u := r.upper[v]; !math.IsInf(u, 1) {
			rows = append(rows, row{coef: map[int]float64{k: 1}, slack: 1, rhs: u - r.lower[v]})
		}
	}
	for _, i := range r.rows {
		c := m.Constraints[i]
		base := row{coef: make(map[int]float64, len(c.Expr.Terms)), rhs: c.RHS - c.Expr.Constant}
		for _, t := range c.Expr.Terms {
			base.rhs -= t.Coef * r.lower[t.Var]
			if !r.fixed(t.Var) {
				base.coef[r.col[t.Var]] += t.Coef
			}
		}
		switch {
		case c.Sense == milp.LessEq:
			base.slack = 1
			rows = append(rows, base)
		case c.Sense == milp.GreaterEq:
			base.slack = -1
			rows = append(rows, base)
		case splitEq:
			le := base
			le.slack = 1
			ge := row{coef: base.coef, slack: -1, rhs: base.rhs}
			rows = append(rows, le, ge)
		default:
			rows = append(rows, base)
		}
	}

	slacks := 0
	for _, rw := range rows {
		if rw.slack != 0 {
			slacks++
		}
	}
	ncol := nv + slacks
	if len(rows) > ncol {
		return nil, lpFailed, fmt.Errorf("solver: %d rows for %d columns", len(rows), ncol)
	}

	a := mat.NewDense(len(rows), ncol, nil)
	b := make([]float64, len(rows))
	next := nv
	for i, rw := range rows {
		sign := 1.0
		if rw.rhs < 0 {
			sign = -1
		}
		for j, v := range rw.coef {
			a.Set(i, j, sign*v)
		}
		if rw.slack != 0 {
			a.Set(i, next, sign*rw.slack)
			next++
		}
		b[i] = sign * rw.rhs
	}
	c := make([]float64, ncol)
	for _, t := range m.Objective.Terms {
		if !r.fixed(t.Var) {
			c[r.col[t.Var]] += t.Coef
		}
	}

	defer func() {
		if p := recover(); p != nil {
			y, st, err = nil, lpFailed, fmt.Errorf("solver: simplex panic: %v", p)
		}
	}()
	_, x, err := simplexFunc(c, a, b, tol, nil)
	switch {
	case err == nil:
		return x[:nv], lpOptimal, nil
	case errors.Is(err, lp.ErrInfeasible):
		return nil, lpInfeasible, err
	case errors.Is(err, lp.ErrUnbounded):
		return nil, lpUnbounded, err
	default:
		return nil, lpFailed, err
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}
