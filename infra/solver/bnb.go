package solver

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/ucplan/core/logger"
	"github.com/kilianp07/ucplan/core/milp"
)

// Config tunes the branch and bound search.
type Config struct {
	// TimeoutSeconds bounds a single Solve call. Zero leaves the caller's
	// context deadline as the only limit.
	TimeoutSeconds       float64 `json:"timeout_seconds"`
	MaxNodes             int     `json:"max_nodes"`
	IntegralityTolerance float64 `json:"integrality_tolerance"`
	// Gap is the relative optimality gap used to prune nodes.
	Gap float64 `json:"gap"`
	// SimplexTolerance is the primal and dual feasibility tolerance of the
	// LP relaxations.
	SimplexTolerance float64 `json:"simplex_tolerance"`
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.MaxNodes <= 0 {
		c.MaxNodes = 20000
	}
	if c.IntegralityTolerance <= 0 {
		c.IntegralityTolerance = 1e-6
	}
	if c.Gap <= 0 {
		c.Gap = 1e-4
	}
	if c.SimplexTolerance <= 0 {
		c.SimplexTolerance = 1e-7
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.TimeoutSeconds < 0 {
		return errors.New("solver: timeout_seconds must be >= 0")
	}
	if c.Gap >= 1 {
		return errors.New("solver: gap must be < 1")
	}
	if c.IntegralityTolerance >= 0.5 {
		return errors.New("solver: integrality_tolerance must be < 0.5")
	}
	if c.SimplexTolerance >= 1e-3 {
		return errors.New("solver: simplex_tolerance must be < 1e-3")
	}
	return nil
}

// BranchAndBound is an LP-based branch and bound solver.
type BranchAndBound struct {
	cfg    Config
	logger logger.Logger
}

// New returns a BranchAndBound solver. A nil logger discards output.
func New(cfg Config, log logger.Logger) *BranchAndBound {
	cfg.SetDefaults()
	return &BranchAndBound{cfg: cfg, logger: logger.OrNop(log)}
}

// Config returns the effective configuration.
func (s *BranchAndBound) Config() Config { return s.cfg }

type node struct {
	lower, upper []float64
	bound        float64
}

// openNodes is a min-heap of nodes by bound.
type openNodes []node

func (q openNodes) Len() int           { return len(q) }
func (q openNodes) Less(i, j int) bool { return q[i].bound < q[j].bound }
func (q openNodes) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *openNodes) Push(x any)        { *q = append(*q, x.(node)) }
func (q *openNodes) Pop() any {
	old := *q
	nd := old[len(old)-1]
	*q = old[:len(old)-1]
	return nd
}

type search struct {
	m   *milp.Model
	cfg Config
	tab *tableau

	incumbent []float64
	best      float64
	nodes     int
}

// Solve runs the search until the tree is exhausted, the node limit is hit
// or ctx is done. Interrupted searches report their incumbent, if any.
func (s *BranchAndBound) Solve(ctx context.Context, m *milp.Model) (milp.Result, error) {
	if err := m.Validate(); err != nil {
		return milp.Result{}, err
	}
	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}
	start := time.Now()

	tab, err := newTableau(m, s.cfg.SimplexTolerance)
	if err != nil {
		s.logger.Warnf("solver setup failed: %v", err)
		return milp.Result{Status: milp.StatusError, Bound: math.Inf(-1), Message: err.Error()}, nil
	}
	root := node{lower: make([]float64, len(m.Vars)), upper: make([]float64, len(m.Vars)), bound: math.Inf(-1)}
	for i, v := range m.Vars {
		root.lower[i], root.upper[i] = v.Lower, v.Upper
	}
	sr := &search{m: m, cfg: s.cfg, tab: tab, best: math.Inf(1)}

	res := sr.run(ctx, root)
	res.Nodes = sr.nodes
	s.logger.Debugw("branch and bound finished", map[string]any{
		"status":    res.Status.String(),
		"objective": res.Objective,
		"bound":     res.Bound,
		"nodes":     sr.nodes,
		"pivots":    tab.pivots,
		"elapsed":   time.Since(start).String(),
	})
	if res.Status == milp.StatusError {
		s.logger.Warnf("solver error after %d nodes: %s", sr.nodes, res.Message)
	}
	return res, nil
}

// run dives from the root, always exploring the child nearer to the
// relaxation value next. When a dive ends the open node with the lowest
// bound is resumed.
//
//gocyclo:ignore
func (sr *search) run(ctx context.Context, root node) milp.Result {
	if err := ctx.Err(); err != nil {
		return milp.Result{Status: milp.StatusTimeout, Bound: math.Inf(-1), Message: interrupted(err)}
	}
	rel := sr.relax(ctx, root)
	switch rel.status {
	case lpInfeasible:
		return milp.Result{Status: milp.StatusInfeasible, Message: "relaxation is infeasible"}
	case lpUnbounded:
		return milp.Result{Status: milp.StatusUnbounded, Message: "relaxation is unbounded"}
	case lpFailed:
		return milp.Result{Status: milp.StatusError, Message: errMessage(rel.err)}
	case lpInterrupted:
		return milp.Result{Status: milp.StatusTimeout, Bound: math.Inf(-1), Message: interrupted(rel.err)}
	}
	if j := sr.branchVar(rel.values); j < 0 {
		sr.accept(rel)
		return sr.result(milp.StatusOptimal, rel.objective, "")
	}
	if err := sr.heuristics(ctx, root, rel.values); err != nil {
		return sr.result(milp.StatusTimeout, math.Min(rel.objective, sr.best), interrupted(err))
	}

	open := &openNodes{}
	next, ok := sr.branch(root, rel, open)
	var lastErr error
	for {
		if !ok {
			if open.Len() == 0 {
				break
			}
			next, ok = heap.Pop(open).(node), true
		}
		nd := next
		ok = false
		if err := ctx.Err(); err != nil {
			return sr.result(milp.StatusTimeout, sr.openBound(*open, nd), interrupted(err))
		}
		if sr.nodes >= sr.cfg.MaxNodes {
			return sr.result(milp.StatusNodeLimit, sr.openBound(*open, nd), fmt.Sprintf("node limit %d reached", sr.cfg.MaxNodes))
		}
		if sr.pruned(nd.bound) {
			continue
		}
		rel := sr.relax(ctx, nd)
		switch rel.status {
		case lpInfeasible:
			continue
		case lpUnbounded:
			return milp.Result{Status: milp.StatusUnbounded, Nodes: sr.nodes, Message: "relaxation is unbounded"}
		case lpFailed:
			lastErr = rel.err
			continue
		case lpInterrupted:
			return sr.result(milp.StatusTimeout, sr.openBound(*open, nd), interrupted(rel.err))
		}
		if sr.pruned(rel.objective) {
			continue
		}
		if sr.branchVar(rel.values) < 0 {
			sr.accept(rel)
			continue
		}
		next, ok = sr.branch(nd, rel, open)
	}
	if sr.incumbent == nil {
		if lastErr != nil {
			return milp.Result{Status: milp.StatusError, Message: errMessage(lastErr)}
		}
		return milp.Result{Status: milp.StatusInfeasible, Message: "no integer feasible point"}
	}
	return sr.result(milp.StatusOptimal, sr.best, "")
}

func (sr *search) relax(ctx context.Context, nd node) relaxation {
	sr.nodes++
	return solveRelaxation(ctx, sr.m, sr.tab, nd.lower, nd.upper, sr.cfg)
}

// branch queues the farther child of nd and returns the nearer one.
func (sr *search) branch(nd node, rel relaxation, open *openNodes) (node, bool) {
	kids := sr.children(nd, rel)
	heap.Push(open, kids[0])
	return kids[1], true
}

// branchVar returns the integral variable whose value is farthest from an
// integer, or -1 when the point is integer feasible.
func (sr *search) branchVar(x []float64) int {
	best, bestFrac := -1, sr.cfg.IntegralityTolerance
	for j, v := range sr.m.Vars {
		if !v.Domain.IsIntegral() {
			continue
		}
		f := math.Abs(x[j] - math.Round(x[j]))
		if f > bestFrac {
			best, bestFrac = j, f
		}
	}
	return best
}

// children returns both branches of nd, the one nearer to the relaxation
// value last so that it is explored first.
func (sr *search) children(nd node, rel relaxation) []node {
	j := sr.branchVar(rel.values)
	x := rel.values[j]
	down := node{lower: nd.lower, upper: append([]float64(nil), nd.upper...), bound: rel.objective}
	down.upper[j] = math.Floor(x)
	up := node{lower: append([]float64(nil), nd.lower...), upper: nd.upper, bound: rel.objective}
	up.lower[j] = math.Ceil(x)
	if x-math.Floor(x) < 0.5 {
		return []node{up, down}
	}
	return []node{down, up}
}

func (sr *search) pruned(bound float64) bool {
	if sr.incumbent == nil {
		return false
	}
	margin := math.Max(sr.cfg.Gap*math.Abs(sr.best), sr.cfg.Gap)
	return bound >= sr.best-margin
}

func (sr *search) accept(rel relaxation) {
	if rel.objective >= sr.best {
		return
	}
	vals := append([]float64(nil), rel.values...)
	for j, v := range sr.m.Vars {
		if v.Domain.IsIntegral() {
			vals[j] = math.Round(vals[j])
		}
	}
	sr.incumbent = vals
	sr.best = rel.objective
}

// heuristics tries to find an incumbent at the root by fixing every integral
// variable to a rounded value (up, nearest, then down) and solving the
// remaining LP. It returns the context error when interrupted.
func (sr *search) heuristics(ctx context.Context, root node, x []float64) error {
	tol := sr.cfg.IntegralityTolerance
	rounders := []func(float64) float64{
		func(x float64) float64 { return math.Ceil(x - tol) },
		math.Round,
		func(x float64) float64 { return math.Floor(x + tol) },
	}
	for _, round := range rounders {
		nd := node{lower: append([]float64(nil), root.lower...), upper: append([]float64(nil), root.upper...)}
		for j, v := range sr.m.Vars {
			if !v.Domain.IsIntegral() {
				continue
			}
			r := clamp(round(x[j]), root.lower[j], root.upper[j])
			nd.lower[j], nd.upper[j] = r, r
		}
		switch rel := sr.relax(ctx, nd); rel.status {
		case lpOptimal:
			sr.accept(rel)
		case lpInterrupted:
			return rel.err
		}
	}
	return nil
}

// openBound is the smallest bound among unexplored nodes, capped by the
// incumbent.
func (sr *search) openBound(open openNodes, pending node) float64 {
	b := math.Min(sr.best, pending.bound)
	for _, nd := range open {
		b = math.Min(b, nd.bound)
	}
	return b
}

func (sr *search) result(st milp.Status, bound float64, msg string) milp.Result {
	res := milp.Result{Status: st, Bound: bound, Message: msg}
	if sr.incumbent != nil {
		res.Values = sr.incumbent
		res.HasValues = true
		res.Objective = sr.best
	}
	if st == milp.StatusOptimal {
		res.Bound = sr.best
	}
	return res
}

func interrupted(err error) string {
	if err == nil {
		return "search interrupted"
	}
	return "search interrupted: " + err.Error()
}

func errMessage(err error) string {
	if err == nil {
		return "relaxation failed"
	}
	return err.Error()
}
