package schedule

import (
	"fmt"
	"math"

	"github.com/kilianp07/ucplan/core/model"
)

// DefaultTolerance is the absolute slack accepted by Verify.
const DefaultTolerance = 1e-3

// Violation is an invariant a schedule does not satisfy.
type Violation struct {
	Rule   string  `json:"rule"`
	Hour   int     `json:"hour"`
	Unit   string  `json:"unit,omitempty"`
	Amount float64 `json:"amount"`
}

func (v Violation) String() string {
	if v.Unit != "" {
		return fmt.Sprintf("%s: unit %s hour %d off by %.6g", v.Rule, v.Unit, v.Hour, v.Amount)
	}
	return fmt.Sprintf("%s: hour %d off by %.6g", v.Rule, v.Hour, v.Amount)
}

type verifier struct {
	in  model.Instance
	s   *Schedule
	tol float64
	out []Violation
}

func (v *verifier) fail(rule string, hour int, unit string, amount float64) {
	v.out = append(v.out, Violation{Rule: rule, Hour: hour, Unit: unit, Amount: amount})
}

// exceeds records a violation when got is more than tol above limit.
func (v *verifier) exceeds(rule string, hour int, unit string, got, limit float64) {
	if got > limit+v.tol {
		v.fail(rule, hour, unit, got-limit)
	}
}

func (v *verifier) equal(rule string, hour int, got, want float64) {
	if d := math.Abs(got - want); d > v.tol {
		v.fail(rule, hour, "", d)
	}
}

// Verify checks the schedule against the physical and policy invariants of
// in. It reports every violation beyond tol and never alters the schedule.
func Verify(in model.Instance, s *Schedule, tol float64) []Violation {
	if s == nil {
		return nil
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}
	v := &verifier{in: in, s: s, tol: tol}
	v.hourly()
	v.storage()
	v.ramps()
	v.durations()
	v.emissions()
	return v.out
}

func (v *verifier) hourly() {
	bat := v.in.Battery
	for _, h := range v.s.Hours {
		v.equal("balance", h.Hour, h.FossilMW()+h.RenewableUsedMW+h.DischargeMW-h.ChargeMW, v.in.Demand(h.Hour))
		v.equal("renewable_split", h.Hour, h.RenewableUsedMW+h.CurtailedMW, v.in.Availability(h.Hour))
		headroom := bat.PowerMW - h.DischargeMW
		for f, u := range h.Units {
			unit := v.in.Units[f]
			if !u.Committed {
				v.exceeds("linkage", h.Hour, u.Name, u.GenerationMW, 0)
				continue
			}
			v.exceeds("capacity", h.Hour, u.Name, u.GenerationMW, unit.CapacityMW)
			headroom += unit.CapacityMW - u.GenerationMW
		}
		required := v.in.Policy.ReserveFraction * v.in.Demand(h.Hour)
		if headroom < required-v.tol {
			v.fail("reserve", h.Hour, "", required-headroom)
		}
	}
}

func (v *verifier) storage() {
	bat := v.in.Battery
	for i, h := range v.s.Hours {
		v.exceeds("soc_capacity", h.Hour, "", h.StateOfChargeMWh, bat.CapacityMWh)
		v.exceeds("soc_floor", h.Hour, "", -h.StateOfChargeMWh, 0)
		if i == 0 {
			v.equal("soc_init", h.Hour, h.StateOfChargeMWh, bat.InitialSoCMWh)
			v.exceeds("no_overdischarge", h.Hour, "", h.DischargeMW, bat.InitialSoCMWh)
			continue
		}
		p := v.s.Hours[i-1]
		want := p.StateOfChargeMWh + bat.Efficiency*p.ChargeMW - p.DischargeMW/bat.Efficiency
		v.equal("soc", h.Hour, h.StateOfChargeMWh, want)
		v.exceeds("no_overdischarge", h.Hour, "", h.DischargeMW, p.StateOfChargeMWh)
	}
}

func (v *verifier) ramps() {
	for f, unit := range v.in.Units {
		if !unit.HasRampLimit() {
			continue
		}
		for i := 1; i < len(v.s.Hours); i++ {
			cur := v.s.Hours[i].Units[f]
			prev := v.s.Hours[i-1].Units[f]
			v.exceeds("ramp", v.s.Hours[i].Hour, cur.Name, math.Abs(cur.GenerationMW-prev.GenerationMW), unit.RampLimitMW)
		}
	}
}

// durations checks that every start keeps the unit on for its minimum up
// time and every stop keeps it off for its minimum down time, with windows
// clamped to the horizon.
func (v *verifier) durations() {
	T := len(v.s.Hours)
	for f, unit := range v.in.Units {
		for i, h := range v.s.Hours {
			u := h.Units[f]
			if !u.StartUp && !u.ShutDown {
				continue
			}
			dur, want, rule := unit.MinUpHours, true, "min_up"
			if u.ShutDown {
				dur, want, rule = unit.MinDownHours, false, "min_down"
			}
			for j := i; j < i+dur && j < T; j++ {
				if v.s.Hours[j].Units[f].Committed != want {
					v.fail(rule, v.s.Hours[j].Hour, u.Name, 1)
					break
				}
			}
		}
	}
}

func (v *verifier) emissions() {
	if !v.in.Policy.HasEmissionCap() {
		return
	}
	var total float64
	for _, h := range v.s.Hours {
		for f, u := range h.Units {
			total += v.in.Units[f].EmissionFactor * u.GenerationMW
		}
	}
	v.exceeds("emission_cap", 0, "", total, v.in.Policy.EmissionCap)
}
