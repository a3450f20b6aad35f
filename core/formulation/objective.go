package formulation

import (
	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
)

// BuildObjective returns the total cost expression: generation and start-up
// costs of every unit, battery throughput cost and renewable energy cost.
func BuildObjective(in model.Instance, reg *Registry) (milp.Expr, error) {
	b := newBuilder(reg)
	obj := milp.NewExpr()
	for f, u := range in.Units {
		for t := 1; t <= reg.T; t++ {
			obj.Add(b.v(Generation, f, t), u.Cost)
			obj.Add(b.v(StartUp, f, t), u.StartUpCost)
		}
	}
	for t := 1; t <= reg.T; t++ {
		obj.Add(b.h(Charge, t), in.Battery.OperatingCost)
		obj.Add(b.h(Discharge, t), in.Battery.OperatingCost)
		obj.Add(b.h(RenewableUsed, t), in.Renewable.Cost)
	}
	if b.err != nil {
		return milp.Expr{}, b.err
	}
	return *obj, nil
}
