package formulation

import (
	"errors"
	"fmt"

	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
)

// Family names a group of constraints. Constraint names start with the
// family name followed by their indices.
type Family string

const (
	FamilyBalance         Family = "balance"
	FamilyRenewableSplit  Family = "renewable_split"
	FamilyLinkage         Family = "linkage"
	FamilySoCInit         Family = "soc_init"
	FamilySoC             Family = "soc"
	FamilyNoOverDischarge Family = "no_overdischarge"
	FamilyStartUp         Family = "startup"
	FamilyShutDown        Family = "shutdown"
	FamilyMinUp           Family = "min_up"
	FamilyMinDown         Family = "min_down"
	FamilyRampUp          Family = "ramp_up"
	FamilyRampDown        Family = "ramp_down"
	FamilyReserve         Family = "reserve"
	FamilyEmissionCap     Family = "emission_cap"
)

// Families lists every family in generation order.
var Families = []Family{
	FamilyBalance, FamilyRenewableSplit, FamilyLinkage, FamilySoCInit, FamilySoC,
	FamilyNoOverDischarge, FamilyStartUp, FamilyShutDown, FamilyMinUp, FamilyMinDown,
	FamilyRampUp, FamilyRampDown, FamilyReserve, FamilyEmissionCap,
}

// ErrMismatch is returned when the instance does not match the registry it
// is combined with.
var ErrMismatch = errors.New("instance does not match registry")

// BuildConstraints emits every constraint family for the instance over the
// variables declared in reg.
func BuildConstraints(in model.Instance, reg *Registry) ([]milp.Constraint, error) {
	if in.Horizon.Len() != reg.T || len(in.Units) != reg.F {
		return nil, ErrMismatch
	}
	for f, u := range in.Units {
		if u.MinUpHours < 1 || u.MinDownHours < 1 {
			return nil, fmt.Errorf("unit %s: %w", in.UnitName(f), model.ErrDuration)
		}
	}
	b := newBuilder(reg)
	b.balance(in)
	b.renewableSplit(in)
	b.linkage(in)
	b.storage(in)
	b.transitions(in)
	b.minUpDown(in)
	b.ramping(in)
	b.reserve(in)
	b.emissions(in)
	if b.err != nil {
		return nil, b.err
	}
	return b.cons, nil
}

func unitHour(fam Family, f, t int) string { return fmt.Sprintf("%s[%d,%d]", fam, f+1, t) }

func hour(fam Family, t int) string { return fmt.Sprintf("%s[%d]", fam, t) }

// Σ gen[f,t] + ren[t] + dis[t] - ch[t] = demand[t]
func (b *builder) balance(in model.Instance) {
	for t := 1; t <= b.reg.T; t++ {
		e := milp.NewExpr()
		for f := range in.Units {
			e.Add(b.v(Generation, f, t), 1)
		}
		e.Add(b.h(RenewableUsed, t), 1).Add(b.h(Discharge, t), 1).Add(b.h(Charge, t), -1)
		b.add(hour(FamilyBalance, t), e, milp.Equal, in.Demand(t))
	}
}

// ren[t] + curt[t] = availability[t]
func (b *builder) renewableSplit(in model.Instance) {
	for t := 1; t <= b.reg.T; t++ {
		e := milp.NewExpr().Add(b.h(RenewableUsed, t), 1).Add(b.h(Curtailed, t), 1)
		b.add(hour(FamilyRenewableSplit, t), e, milp.Equal, in.Availability(t))
	}
}

// gen[f,t] <= capacity[f] * on[f,t]
func (b *builder) linkage(in model.Instance) {
	for f, u := range in.Units {
		for t := 1; t <= b.reg.T; t++ {
			e := milp.NewExpr().Add(b.v(Generation, f, t), 1).Add(b.v(Committed, f, t), -u.CapacityMW)
			b.add(unitHour(FamilyLinkage, f, t), e, milp.LessEq, 0)
		}
	}
}

// soc[1] = initial; soc[t] = soc[t-1] + eta*ch[t-1] - dis[t-1]/eta.
// Discharge in hour t is limited by the energy stored at hour t-1.
func (b *builder) storage(in model.Instance) {
	bat := in.Battery
	eta := bat.Efficiency
	b.add(string(FamilySoCInit), milp.NewExpr().Add(b.h(StateOfCharge, 1), 1), milp.Equal, bat.InitialSoCMWh)
	for t := 2; t <= b.reg.T; t++ {
		e := milp.NewExpr().
			Add(b.h(StateOfCharge, t), 1).
			Add(b.h(StateOfCharge, t-1), -1).
			Add(b.h(Charge, t-1), -eta).
			Add(b.h(Discharge, t-1), 1/eta)
		b.add(hour(FamilySoC, t), e, milp.Equal, 0)
	}
	b.add(hour(FamilyNoOverDischarge, 1), milp.NewExpr().Add(b.h(Discharge, 1), 1), milp.LessEq, bat.InitialSoCMWh)
	for t := 2; t <= b.reg.T; t++ {
		e := milp.NewExpr().Add(b.h(Discharge, t), 1).Add(b.h(StateOfCharge, t-1), -1)
		b.add(hour(FamilyNoOverDischarge, t), e, milp.LessEq, 0)
	}
}

// addPrevious adds coef times the commitment of unit f before hour t. For
// t = 1 the configured boundary condition supplies a constant.
func (b *builder) addPrevious(e *milp.Expr, in model.Instance, f, t int, coef float64) {
	if t > 1 {
		e.Add(b.v(Committed, f, t-1), coef)
		return
	}
	if in.InitialCommitment() == model.InitialOn {
		e.AddConstant(coef)
	}
}

// su[f,t] >= on[f,t] - on[f,t-1] and sd[f,t] >= on[f,t-1] - on[f,t].
// Hour 1 only gets the transition the boundary condition makes possible.
func (b *builder) transitions(in model.Instance) {
	initial := in.InitialCommitment()
	for f := range in.Units {
		for t := 1; t <= b.reg.T; t++ {
			if t > 1 || initial == model.InitialOff {
				e := milp.NewExpr().Add(b.v(StartUp, f, t), 1).Add(b.v(Committed, f, t), -1)
				b.addPrevious(e, in, f, t, 1)
				b.add(unitHour(FamilyStartUp, f, t), e, milp.GreaterEq, 0)
			}
			if t > 1 || initial == model.InitialOn {
				e := milp.NewExpr().Add(b.v(ShutDown, f, t), 1).Add(b.v(Committed, f, t), 1)
				b.addPrevious(e, in, f, t, -1)
				b.add(unitHour(FamilyShutDown, f, t), e, milp.GreaterEq, 0)
			}
		}
	}
}

// Implication form, applied to both directions:
//
//	on[t] - on[t-1] <= on[tau]          tau in [t+1, min(t+up-1, T)]
//	on[t-1] - on[t] <= 1 - on[tau]      tau in [t+1, min(t+down-1, T)]
func (b *builder) minUpDown(in model.Instance) {
	initial := in.InitialCommitment()
	for f, u := range in.Units {
		for t := 1; t <= b.reg.T; t++ {
			if t > 1 || initial == model.InitialOff {
				for tau := t + 1; tau <= windowEnd(t, u.MinUpHours, b.reg.T); tau++ {
					e := milp.NewExpr().Add(b.v(Committed, f, t), 1).Add(b.v(Committed, f, tau), -1)
					b.addPrevious(e, in, f, t, -1)
					b.add(fmt.Sprintf("%s[%d,%d,%d]", FamilyMinUp, f+1, t, tau), e, milp.LessEq, 0)
				}
			}
			if t > 1 || initial == model.InitialOn {
				for tau := t + 1; tau <= windowEnd(t, u.MinDownHours, b.reg.T); tau++ {
					e := milp.NewExpr().Add(b.v(Committed, f, t), -1).Add(b.v(Committed, f, tau), 1)
					b.addPrevious(e, in, f, t, 1)
					b.add(fmt.Sprintf("%s[%d,%d,%d]", FamilyMinDown, f+1, t, tau), e, milp.LessEq, 1)
				}
			}
		}
	}
}

// windowEnd clamps the last hour of a minimum-duration window to T.
func windowEnd(t, duration, T int) int {
	end := t + duration - 1
	if end > T {
		return T
	}
	return end
}

// |gen[f,t] - gen[f,t-1]| <= ramp[f] for t > 1.
func (b *builder) ramping(in model.Instance) {
	for f, u := range in.Units {
		if !u.HasRampLimit() {
			continue
		}
		for t := 2; t <= b.reg.T; t++ {
			up := milp.NewExpr().Add(b.v(Generation, f, t), 1).Add(b.v(Generation, f, t-1), -1)
			b.add(unitHour(FamilyRampUp, f, t), up, milp.LessEq, u.RampLimitMW)
			down := milp.NewExpr().Add(b.v(Generation, f, t-1), 1).Add(b.v(Generation, f, t), -1)
			b.add(unitHour(FamilyRampDown, f, t), down, milp.LessEq, u.RampLimitMW)
		}
	}
}

// Σ (cap[f]*on[f,t] - gen[f,t]) + (P - dis[t]) >= r * demand[t]
func (b *builder) reserve(in model.Instance) {
	r := in.Policy.ReserveFraction
	for t := 1; t <= b.reg.T; t++ {
		e := milp.NewExpr()
		for f, u := range in.Units {
			e.Add(b.v(Committed, f, t), u.CapacityMW).Add(b.v(Generation, f, t), -1)
		}
		e.Add(b.h(Discharge, t), -1).AddConstant(in.Battery.PowerMW)
		b.add(hour(FamilyReserve, t), e, milp.GreaterEq, r*in.Demand(t))
	}
}

// Σ emission[f] * gen[f,t] <= cap over the whole horizon.
func (b *builder) emissions(in model.Instance) {
	if !in.Policy.HasEmissionCap() {
		return
	}
	e := milp.NewExpr()
	for f, u := range in.Units {
		for t := 1; t <= b.reg.T; t++ {
			e.Add(b.v(Generation, f, t), u.EmissionFactor)
		}
	}
	b.add(string(FamilyEmissionCap), e, milp.LessEq, in.Policy.EmissionCap)
}
