package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/ucplan/core/milp"
	"gonum.org/v1/gonum/mat"
)

const (
	pivotTolerance    = 1e-9
	dropTolerance     = 1e-12
	residualTolerance = 1e-6
	// maxTableauCells caps the dense tableau at 256 MiB.
	maxTableauCells = 1 << 25

	pollEvery    = 16
	refreshEvery = 100
	rebaseEvery  = 64
	blandAfter   = 50
)

var errIterationLimit = errors.New("solver: simplex iteration limit reached")

type colState int8

const (
	atLower colState = iota
	atUpper
	isFree
	isBasic
)

type entry struct {
	col int
	val float64
}

// tableau is a dense bounded-variable simplex tableau B⁻¹[A I]. Columns are
// the model variables followed by one logical per constraint, so row i reads
// Σ a_ij x_j + s_i = b_i with s_i in [0, ∞) for <=, (-∞, 0] for >= and
// [0, 0] for equalities. Nonbasic columns sit at a bound; only the bounds of
// the model variables change between solves, which lets every node start
// from the basis left by the previous one.
type tableau struct {
	rows, n, cols int

	a      []float64
	b      []float64
	cost   []float64
	d      []float64
	lo, up []float64
	x      []float64
	state  []colState
	head   []int
	orig   [][]entry
	rhsNZ  []int
	tol    float64
	solves int
	pivots int

	w    []float64
	d1   []float64
	nz   []int
	cand []int
}

func newTableau(m *milp.Model, tol float64) (*tableau, error) {
	rows, n := len(m.Constraints), len(m.Vars)
	cols := n + rows
	if rows*cols > maxTableauCells {
		return nil, fmt.Errorf("solver: %d rows by %d columns exceed the dense tableau limit", rows, cols)
	}
	t := &tableau{
		rows: rows, n: n, cols: cols,
		a:     make([]float64, rows*cols),
		b:     make([]float64, rows),
		cost:  make([]float64, cols),
		d:     make([]float64, cols),
		lo:    make([]float64, cols),
		up:    make([]float64, cols),
		x:     make([]float64, cols),
		state: make([]colState, cols),
		head:  make([]int, rows),
		orig:  make([][]entry, rows),
		tol:   tol,
		w:     make([]float64, rows),
		d1:    make([]float64, cols),
	}
	for i, c := range m.Constraints {
		t.b[i] = c.RHS - c.Expr.Constant
		if t.b[i] != 0 {
			t.rhsNZ = append(t.rhsNZ, i)
		}
		row := t.a[i*cols : (i+1)*cols]
		for _, term := range c.Expr.Terms {
			row[term.Var] += term.Coef
		}
		for j, v := range row[:n] {
			if v != 0 {
				t.orig[i] = append(t.orig[i], entry{col: j, val: v})
			}
		}
		s := n + i
		switch c.Sense {
		case milp.LessEq:
			t.lo[s], t.up[s] = 0, math.Inf(1)
		case milp.GreaterEq:
			t.lo[s], t.up[s] = math.Inf(-1), 0
		}
	}
	for _, term := range m.Objective.Terms {
		t.cost[term.Var] += term.Coef
	}
	for j, v := range m.Vars {
		t.lo[j], t.up[j] = v.Lower, v.Upper
	}
	t.reset()
	return t, nil
}

// reset restores the logical basis with every model variable at zero.
func (t *tableau) reset() {
	for i := range t.a {
		t.a[i] = 0
	}
	for i, row := range t.orig {
		r := t.a[i*t.cols : (i+1)*t.cols]
		for _, e := range row {
			r[e.col] = e.val
		}
		r[t.n+i] = 1
		t.head[i] = t.n + i
		t.state[t.n+i] = isBasic
		t.x[t.n+i] = t.b[i]
	}
	for j := 0; j < t.n; j++ {
		t.state[j] = isFree
		t.x[j] = 0
	}
	copy(t.d, t.cost)
	t.solves = 0
}

// setBounds installs node bounds on the model variables.
func (t *tableau) setBounds(lower, upper []float64) {
	copy(t.lo[:t.n], lower)
	copy(t.up[:t.n], upper)
}

// values returns the model variables clamped to [lower, upper].
func (t *tableau) values(lower, upper []float64) []float64 {
	out := make([]float64, t.n)
	for j := range out {
		out[j] = clamp(t.x[j], lower[j], upper[j])
	}
	return out
}

func (t *tableau) solve(ctx context.Context) (lpStatus, error) {
	limit := 20*(t.rows+t.cols) + 1000
	for attempt := 0; ; attempt++ {
		dualFeasible := t.place()
		if t.solves%rebaseEvery == 0 {
			t.computeBasics()
		}
		t.solves++

		var st lpStatus
		var err error
		if dualFeasible {
			st, err = t.dual(ctx, limit)
			if st == lpFailed {
				st, err = t.primal(ctx, limit)
			}
		} else {
			st, err = t.primal(ctx, limit)
		}
		if st != lpOptimal {
			return st, err
		}
		res := t.residual()
		if res <= residualTolerance {
			return lpOptimal, nil
		}
		if attempt > 0 {
			return lpFailed, fmt.Errorf("solver: residual %.3g after refactorization", res)
		}
		if err := t.refactor(); err != nil {
			return lpFailed, err
		}
	}
}

// place moves every nonbasic column to the bound its reduced cost prefers
// and reports whether the basis is dual feasible.
func (t *tableau) place() bool {
	feasible := true
	for j := 0; j < t.cols; j++ {
		if t.state[j] == isBasic {
			continue
		}
		l, u := t.lo[j], t.up[j]
		loFin, upFin := !math.IsInf(l, -1), !math.IsInf(u, 1)
		dj := t.d[j]
		var st colState
		switch {
		case loFin && upFin && u <= l:
			st = atLower
		case dj > t.tol && loFin:
			st = atLower
		case dj < -t.tol && upFin:
			st = atUpper
		case dj > t.tol || dj < -t.tol:
			feasible = false
			st = finiteSide(loFin, upFin)
		case t.state[j] == atUpper && upFin:
			st = atUpper
		default:
			st = finiteSide(loFin, upFin)
		}
		t.setNonbasic(j, st)
	}
	return feasible
}

func finiteSide(loFin, upFin bool) colState {
	switch {
	case loFin:
		return atLower
	case upFin:
		return atUpper
	default:
		return isFree
	}
}

func (t *tableau) setNonbasic(j int, st colState) {
	t.state[j] = st
	var v float64
	switch st {
	case atLower:
		v = t.lo[j]
	case atUpper:
		v = t.up[j]
	}
	t.move(j, v-t.x[j])
	t.x[j] = v
}

// move shifts nonbasic column j by delta and updates the basic values.
func (t *tableau) move(j int, delta float64) {
	if delta == 0 {
		return
	}
	for r := 0; r < t.rows; r++ {
		if alpha := t.a[r*t.cols+j]; alpha != 0 {
			t.x[t.head[r]] -= alpha * delta
		}
	}
	t.x[j] += delta
}

// computeBasics recomputes x_B = B⁻¹b - Σ B⁻¹A_j x_j over the nonbasic
// columns. B⁻¹ is held in the logical columns of the tableau.
func (t *tableau) computeBasics() {
	nb := t.nz[:0]
	for j := 0; j < t.cols; j++ {
		if t.state[j] != isBasic && t.x[j] != 0 {
			nb = append(nb, j)
		}
	}
	for r := 0; r < t.rows; r++ {
		row := t.a[r*t.cols : (r+1)*t.cols]
		v := 0.0
		for _, i := range t.rhsNZ {
			v += row[t.n+i] * t.b[i]
		}
		for _, j := range nb {
			v -= row[j] * t.x[j]
		}
		t.x[t.head[r]] = v
	}
	t.nz = nb
}

func (t *tableau) computeDuals() {
	copy(t.d, t.cost)
	for r := 0; r < t.rows; r++ {
		cb := t.cost[t.head[r]]
		if cb == 0 {
			continue
		}
		for j, v := range t.a[r*t.cols : (r+1)*t.cols] {
			if v != 0 {
				t.d[j] -= cb * v
			}
		}
	}
	for _, k := range t.head {
		t.d[k] = 0
	}
}

// pivot brings column j into the basis at row r. Values must already be
// moved; the caller sets the state of the leaving column.
func (t *tableau) pivot(r, j int) {
	pr := t.a[r*t.cols : (r+1)*t.cols]
	p := pr[j]
	nz := t.nz[:0]
	for k, v := range pr {
		if v == 0 {
			continue
		}
		v /= p
		if math.Abs(v) < dropTolerance {
			pr[k] = 0
			continue
		}
		pr[k] = v
		nz = append(nz, k)
	}
	pr[j] = 1
	for i := 0; i < t.rows; i++ {
		if i == r {
			continue
		}
		ri := t.a[i*t.cols : (i+1)*t.cols]
		f := ri[j]
		if f == 0 {
			continue
		}
		for _, k := range nz {
			v := ri[k] - f*pr[k]
			if math.Abs(v) < dropTolerance {
				v = 0
			}
			ri[k] = v
		}
		ri[j] = 0
	}
	if f := t.d[j]; f != 0 {
		for _, k := range nz {
			t.d[k] -= f * pr[k]
		}
		t.d[j] = 0
	}
	t.nz = nz
	t.pivots++
	t.head[r] = j
	t.state[j] = isBasic
}

func (t *tableau) leave(k int, toUpper bool) {
	if toUpper {
		t.state[k], t.x[k] = atUpper, t.up[k]
		return
	}
	t.state[k], t.x[k] = atLower, t.lo[k]
}

// primal runs the bounded primal simplex. While basic values are out of
// bounds it minimises their total infeasibility first.
//
//gocyclo:ignore
func (t *tableau) primal(ctx context.Context, limit int) (lpStatus, error) {
	degenerate := 0
	for it := 0; ; it++ {
		if it%pollEvery == 0 {
			if err := ctx.Err(); err != nil {
				return lpInterrupted, err
			}
		}
		if it >= limit {
			return lpFailed, errIterationLimit
		}
		if it > 0 && it%refreshEvery == 0 {
			t.computeBasics()
			t.computeDuals()
		}
		price := t.d
		infeasible := t.phaseOne()
		if infeasible {
			price = t.d1
		}
		bland := degenerate >= blandAfter
		j, dir := t.price(price, bland)
		if j < 0 {
			if infeasible {
				return lpInfeasible, nil
			}
			return lpOptimal, nil
		}
		r, step, toUpper := t.ratio(j, dir, bland)
		flip := t.up[j] - t.lo[j]
		if r < 0 && math.IsInf(flip, 1) {
			if infeasible {
				return lpFailed, errors.New("solver: unbounded ray while restoring feasibility")
			}
			return lpUnbounded, nil
		}
		if r < 0 || flip <= step {
			t.move(j, dir*flip)
			if dir > 0 {
				t.state[j], t.x[j] = atUpper, t.up[j]
			} else {
				t.state[j], t.x[j] = atLower, t.lo[j]
			}
			degenerate = 0
			continue
		}
		t.move(j, dir*step)
		k := t.head[r]
		t.pivot(r, j)
		t.leave(k, toUpper)
		if step <= dropTolerance {
			degenerate++
		} else {
			degenerate = 0
		}
	}
}

// phaseOne fills d1 with the reduced costs of the sum of infeasibilities
// and reports whether any basic value is out of bounds.
func (t *tableau) phaseOne() bool {
	found := false
	for r, k := range t.head {
		xv := t.x[k]
		switch {
		case xv < t.lo[k]-t.tol:
			t.w[r] = -1
		case xv > t.up[k]+t.tol:
			t.w[r] = 1
		default:
			t.w[r] = 0
			continue
		}
		found = true
	}
	if !found {
		return false
	}
	for j := range t.d1 {
		t.d1[j] = 0
	}
	for r, w := range t.w {
		if w == 0 {
			continue
		}
		for j, v := range t.a[r*t.cols : (r+1)*t.cols] {
			if v != 0 {
				t.d1[j] -= w * v
			}
		}
	}
	return true
}

// price picks the entering column: the largest reduced cost, or the first
// eligible one in Bland mode.
func (t *tableau) price(d []float64, bland bool) (int, float64) {
	best, dir, score := -1, 0.0, 0.0
	for j := 0; j < t.cols; j++ {
		st := t.state[j]
		if st == isBasic || t.up[j] <= t.lo[j] {
			continue
		}
		dj := d[j]
		var sd float64
		switch {
		case dj < -t.tol && st != atUpper:
			sd = 1
		case dj > t.tol && st != atLower:
			sd = -1
		default:
			continue
		}
		if bland {
			return j, sd
		}
		if s := math.Abs(dj); s > score {
			best, dir, score = j, sd, s
		}
	}
	return best, dir
}

// limit is the step after which the basic value of row r hits a bound when
// it changes at rate per unit step. Out-of-bounds values block where they
// become feasible.
func (t *tableau) limit(r int, rate, slack float64) (float64, bool, bool) {
	k := t.head[r]
	xv, l, u := t.x[k], t.lo[k], t.up[k]
	if rate < 0 {
		switch {
		case xv > u+t.tol:
			return (xv - u + slack) / -rate, true, true
		case !math.IsInf(l, -1) && xv >= l-t.tol:
			return (xv - l + slack) / -rate, false, true
		}
		return 0, false, false
	}
	switch {
	case xv < l-t.tol:
		return (l - xv + slack) / rate, false, true
	case !math.IsInf(u, 1) && xv <= u+t.tol:
		return (u - xv + slack) / rate, true, true
	}
	return 0, false, false
}

// ratio is a two-pass Harris ratio test for column j moving in direction
// dir. It returns the blocking row, the step and the bound the leaving
// column takes, or row -1 when nothing blocks.
func (t *tableau) ratio(j int, dir float64, bland bool) (int, float64, bool) {
	relaxed := math.Inf(1)
	for r := 0; r < t.rows; r++ {
		alpha := t.a[r*t.cols+j]
		if math.Abs(alpha) <= pivotTolerance {
			continue
		}
		if lim, _, ok := t.limit(r, -alpha*dir, t.tol); ok && lim < relaxed {
			relaxed = lim
		}
	}
	if math.IsInf(relaxed, 1) {
		return -1, 0, false
	}
	best, bestAlpha, step, toUpper := -1, 0.0, 0.0, false
	for r := 0; r < t.rows; r++ {
		alpha := t.a[r*t.cols+j]
		if math.Abs(alpha) <= pivotTolerance {
			continue
		}
		lim, up, ok := t.limit(r, -alpha*dir, 0)
		if !ok || lim > relaxed {
			continue
		}
		better := math.Abs(alpha) > bestAlpha
		if bland {
			better = best < 0 || t.head[r] < t.head[best]
		}
		if better {
			best, bestAlpha, step, toUpper = r, math.Abs(alpha), lim, up
		}
	}
	return best, math.Max(step, 0), toUpper
}

// dual runs the bounded dual simplex from a dual feasible basis.
//
//gocyclo:ignore
func (t *tableau) dual(ctx context.Context, limit int) (lpStatus, error) {
	for it := 0; ; it++ {
		if it%pollEvery == 0 {
			if err := ctx.Err(); err != nil {
				return lpInterrupted, err
			}
		}
		if it >= limit {
			return lpFailed, errIterationLimit
		}
		if it > 0 && it%refreshEvery == 0 {
			t.computeBasics()
			t.computeDuals()
		}
		r, worst, toUpper := -1, t.tol, false
		for i, k := range t.head {
			if v := t.lo[k] - t.x[k]; v > worst {
				r, worst, toUpper = i, v, false
			}
			if v := t.x[k] - t.up[k]; v > worst {
				r, worst, toUpper = i, v, true
			}
		}
		if r < 0 {
			return lpOptimal, nil
		}
		j := t.dualRatio(r, !toUpper)
		if j < 0 {
			return lpInfeasible, nil
		}
		k := t.head[r]
		target := t.lo[k]
		if toUpper {
			target = t.up[k]
		}
		t.move(j, (t.x[k]-target)/t.a[r*t.cols+j])
		t.pivot(r, j)
		t.leave(k, toUpper)
	}
}

// dualRatio picks the entering column for leaving row r, which must
// increase when increase is set. It keeps the reduced costs dual feasible
// and prefers large pivots among near ties.
func (t *tableau) dualRatio(r int, increase bool) int {
	row := t.a[r*t.cols : (r+1)*t.cols]
	cand := t.cand[:0]
	relaxed := math.Inf(1)
	for j, alpha := range row {
		st := t.state[j]
		if st == isBasic || math.Abs(alpha) <= pivotTolerance || t.up[j] <= t.lo[j] {
			continue
		}
		if increase == (alpha < 0) {
			if st == atUpper {
				continue
			}
		} else if st == atLower {
			continue
		}
		cand = append(cand, j)
		if q := (t.reducedSlack(j) + t.tol) / math.Abs(alpha); q < relaxed {
			relaxed = q
		}
	}
	t.cand = cand
	best, bestAlpha := -1, 0.0
	for _, j := range cand {
		a := math.Abs(row[j])
		if t.reducedSlack(j)/a <= relaxed && a > bestAlpha {
			best, bestAlpha = j, a
		}
	}
	return best
}

// reducedSlack is how far the reduced cost of nonbasic column j is from
// losing dual feasibility.
func (t *tableau) reducedSlack(j int) float64 {
	switch t.state[j] {
	case atLower:
		return math.Max(t.d[j], 0)
	case atUpper:
		return math.Max(-t.d[j], 0)
	default:
		return math.Abs(t.d[j])
	}
}

// residual is the largest relative violation of A x + s = b.
func (t *tableau) residual() float64 {
	worst := 0.0
	for i, row := range t.orig {
		v := t.x[t.n+i] - t.b[i]
		for _, e := range row {
			v += e.val * t.x[e.col]
		}
		if q := math.Abs(v) / (1 + math.Abs(t.b[i])); q > worst {
			worst = q
		}
	}
	return worst
}

// refactor rebuilds B⁻¹[A I] for the current basis from the original
// columns, discarding the round-off accumulated by pivoting.
func (t *tableau) refactor() error {
	if t.rows == 0 {
		return nil
	}
	full := mat.NewDense(t.rows, t.cols, nil)
	for i, row := range t.orig {
		for _, e := range row {
			full.Set(i, e.col, e.val)
		}
		full.Set(i, t.n+i, 1)
	}
	basis := mat.NewDense(t.rows, t.rows, nil)
	for r, k := range t.head {
		basis.SetCol(r, mat.Col(nil, k, full))
	}
	var lu mat.LU
	lu.Factorize(basis)
	var inv mat.Dense
	if err := lu.SolveTo(&inv, false, full); err != nil {
		var c mat.Condition
		if !errors.As(err, &c) || math.IsInf(float64(c), 1) {
			return fmt.Errorf("solver: refactorization: %w", err)
		}
	}
	raw := inv.RawMatrix()
	for i := 0; i < t.rows; i++ {
		copy(t.a[i*t.cols:(i+1)*t.cols], raw.Data[i*raw.Stride:i*raw.Stride+t.cols])
	}
	t.computeBasics()
	t.computeDuals()
	return nil
}
