package schedule

// Package schedule turns raw solver output into an hourly operating plan.
// Interpret never fails on infeasible, unbounded or interrupted solves: those
// produce an Outcome carrying a Diagnostic and no Schedule. Verify re-checks
// the physical invariants of a Schedule within a numerical tolerance.
