package milp

import "github.com/kilianp07/ucplan/core/factory"

var solverRegistry = factory.NewRegistry[Solver]()

// RegisterSolver adds a solver factory identified by name.
func RegisterSolver(name string, f factory.Factory[Solver]) error {
	return solverRegistry.Register(name, f)
}

// MustRegisterSolver is RegisterSolver for package init functions.
func MustRegisterSolver(name string, f factory.Factory[Solver]) {
	solverRegistry.MustRegister(name, f)
}

// NewSolver creates the solver described by cfg.
func NewSolver(cfg factory.ModuleConfig) (Solver, error) {
	return solverRegistry.Create(cfg)
}

// Solvers lists the registered solver types.
func Solvers() []string { return solverRegistry.Names() }
