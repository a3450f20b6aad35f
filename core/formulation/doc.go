package formulation

// Package formulation translates a model.Instance into a solver-agnostic
// milp.Model. The Registry declares every decision variable with its domain
// and tightest static bounds, BuildObjective assembles the cost expression
// and BuildConstraints emits the balance, storage, commitment, ramping,
// reserve and emission families. Formulate ties the three together.
