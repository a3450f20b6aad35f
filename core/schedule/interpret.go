package schedule

import (
	"fmt"

	"github.com/kilianp07/ucplan/core/formulation"
	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
)

// committedThreshold separates on from off for relaxed binary values.
const committedThreshold = 0.5

var defaultMessages = map[milp.Status]string{
	milp.StatusInfeasible: "no dispatch satisfies demand, storage, commitment and reliability constraints",
	milp.StatusUnbounded:  "objective is unbounded below",
	milp.StatusTimeout:    "solve interrupted before optimality was proven",
	milp.StatusNodeLimit:  "branch and bound node limit reached before optimality was proven",
	milp.StatusError:      "solver failure",
	milp.StatusUnknown:    "solver returned no status",
}

// Interpret maps a solver result back onto the hourly schedule of f. Only an
// optimal result with a complete value vector yields a Schedule.
func Interpret(f *formulation.Formulation, res milp.Result) Outcome {
	if res.Status != milp.StatusOptimal {
		return diagnose(res, res.Status, "")
	}
	if !res.HasValues || len(res.Values) != f.Registry.Len() {
		return diagnose(res, milp.StatusError,
			fmt.Sprintf("optimal status with %d values for %d variables", len(res.Values), f.Registry.Len()))
	}
	s := build(f.Instance, f.Registry, res)
	return Outcome{Status: milp.StatusOptimal, Schedule: s}
}

func diagnose(res milp.Result, st milp.Status, msg string) Outcome {
	if msg == "" {
		msg = res.Message
	}
	if msg == "" {
		msg = defaultMessages[st]
	}
	d := &Diagnostic{Status: st, Message: msg, Nodes: res.Nodes}
	if res.HasValues {
		obj := res.Objective
		d.Incumbent = &obj
	}
	return Outcome{Status: st, Diagnostic: d}
}

func build(in model.Instance, reg *formulation.Registry, res milp.Result) *Schedule {
	T := in.Horizon.Len()
	s := &Schedule{Status: milp.StatusOptimal, TotalCost: res.Objective, Hours: make([]Hour, T)}
	val := func(k formulation.Kind, f, t int) float64 { return reg.Value(res, k, f, t) }

	prev := make([]bool, len(in.Units))
	initial := in.InitialCommitment()
	for f := range prev {
		prev[f] = initial == model.InitialOn
	}
	for t := 1; t <= T; t++ {
		h := Hour{
			Hour:             t,
			DemandMW:         in.Demand(t),
			Units:            make([]UnitHour, len(in.Units)),
			RenewableUsedMW:  val(formulation.RenewableUsed, -1, t),
			CurtailedMW:      val(formulation.Curtailed, -1, t),
			ChargeMW:         val(formulation.Charge, -1, t),
			DischargeMW:      val(formulation.Discharge, -1, t),
			StateOfChargeMWh: val(formulation.StateOfCharge, -1, t),
		}
		for f, u := range in.Units {
			on := val(formulation.Committed, f, t) >= committedThreshold
			uh := UnitHour{
				Unit:         f,
				Name:         in.UnitName(f),
				Committed:    on,
				GenerationMW: val(formulation.Generation, f, t),
			}
			if t == 1 && initial == model.InitialFree {
				uh.StartUp = on && val(formulation.StartUp, f, t) >= committedThreshold
			} else {
				uh.StartUp = on && !prev[f]
				uh.ShutDown = !on && prev[f]
			}
			prev[f] = on
			h.Units[f] = uh

			s.Summary.GenerationCost += u.Cost * uh.GenerationMW
			s.Summary.FossilMWh += uh.GenerationMW
			s.Summary.Emissions += u.EmissionFactor * uh.GenerationMW
			if uh.StartUp {
				s.Summary.StartUps++
				s.Summary.StartUpCost += u.StartUpCost
			}
			if on {
				s.Summary.CommittedHours++
			}
		}
		s.Summary.BatteryCost += in.Battery.OperatingCost * (h.ChargeMW + h.DischargeMW)
		s.Summary.RenewableCost += in.Renewable.Cost * h.RenewableUsedMW
		s.Summary.RenewableMWh += h.RenewableUsedMW
		s.Summary.CurtailedMWh += h.CurtailedMW
		s.Summary.ChargedMWh += h.ChargeMW
		s.Summary.DischargedMWh += h.DischargeMW
		s.Hours[t-1] = h
	}
	return s
}
