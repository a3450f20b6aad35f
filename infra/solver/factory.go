package solver

import (
	"github.com/kilianp07/ucplan/core/factory"
	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/infra/logger"
)

// Name is the module type under which the branch and bound solver registers.
const Name = "bnb"

func init() {
	milp.MustRegisterSolver(Name, func(conf map[string]any) (milp.Solver, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return New(c, logger.New("solver")), nil
	})
}
