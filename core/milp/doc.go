package milp

// Package milp describes mixed-integer linear programs independently of any
// solver. A Model holds typed variables with static bounds, a linear
// objective to minimise and a list of linear constraints. Solvers implement
// the Solver interface and report a Status together with one value per
// variable. Concrete solvers register themselves with RegisterSolver so that
// they can be selected from configuration.
