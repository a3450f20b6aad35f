package milp

import (
	"context"
	"strings"
)

// Status is the termination status reported by a Solver.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	StatusTimeout
	StatusNodeLimit
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeout:
		return "timeout"
	case StatusNodeLimit:
		return "node_limit"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStatus converts a status name back to a Status.
func ParseStatus(s string) (Status, bool) {
	for st := StatusUnknown; st <= StatusError; st++ {
		if strings.EqualFold(st.String(), s) {
			return st, true
		}
	}
	return StatusUnknown, false
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	st, _ := ParseStatus(string(b))
	*s = st
	return nil
}

// Result is what a Solver returns. Values holds one entry per model variable
// and is only meaningful when HasValues is true.
type Result struct {
	Status    Status
	Objective float64
	Values    []float64
	HasValues bool
	// Bound is the best proven lower bound on the objective.
	Bound   float64
	Nodes   int
	Message string
}

// Value returns the value of v or 0 when no values are available.
func (r Result) Value(v VarID) float64 {
	if !r.HasValues || int(v) < 0 || int(v) >= len(r.Values) {
		return 0
	}
	return r.Values[v]
}

// Solver solves a Model. Infeasible, unbounded or interrupted solves are
// reported through Result.Status; the error is reserved for models the
// solver cannot accept.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Result, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, m *Model) (Result, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, m *Model) (Result, error) { return f(ctx, m) }
