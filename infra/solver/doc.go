package solver

// Package solver implements milp.Solver with an LP-relaxation branch and
// bound. Each node tightens variable bounds, presolves the model (singleton
// rows become bounds) and reoptimizes a shared bounded-variable simplex
// tableau with the dual simplex, starting from the basis of the previous
// node. Pivoting polls the context, so deadlines interrupt a relaxation as
// well as the search. Dives follow the child nearer to the relaxation value
// and resume from the open node with the lowest bound. Small nodes the
// tableau fails on are retried with gonum's simplex.
