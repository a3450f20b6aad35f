package model

import (
	"fmt"
	"math"
	"time"
)

// TimeHorizon is the number of hourly periods T. Hours are indexed 1..T.
type TimeHorizon int

// Len returns T.
func (h TimeHorizon) Len() int { return int(h) }

// Hours returns the ordered hour indices 1..T.
func (h TimeHorizon) Hours() []int {
	out := make([]int, 0, int(h))
	for t := 1; t <= int(h); t++ {
		out = append(out, t)
	}
	return out
}

// Contains reports whether t is a valid hour index.
func (h TimeHorizon) Contains(t int) bool { return t >= 1 && t <= int(h) }

// NoRampLimit marks a unit whose output may change freely between hours.
var NoRampLimit = math.Inf(1)

// NoEmissionCap disables the system-wide emission constraint.
var NoEmissionCap = math.Inf(1)

// FossilUnit describes a dispatchable thermal generator.
type FossilUnit struct {
	Name           string  `json:"name"`
	CapacityMW     float64 `json:"capacity_mw"`
	Cost           float64 `json:"cost"`          // $/MWh
	StartUpCost    float64 `json:"start_up_cost"` // $ per start
	MinUpHours     int     `json:"min_up_hours"`
	MinDownHours   int     `json:"min_down_hours"`
	RampLimitMW    float64 `json:"ramp_limit_mw"` // MW/h, NoRampLimit for none
	EmissionFactor float64 `json:"emission_factor"`
}

// HasRampLimit reports whether the unit is ramp constrained.
func (u FossilUnit) HasRampLimit() bool { return !math.IsInf(u.RampLimitMW, 1) }

// RenewableProfile is the hourly renewable availability.
type RenewableProfile struct {
	AvailabilityMW []float64 `json:"availability_mw"`
	// Cost applies to renewable energy used. It is normally zero.
	Cost float64 `json:"cost"`
}

// Battery is the single storage system of the instance.
type Battery struct {
	CapacityMWh   float64 `json:"capacity_mwh"`
	PowerMW       float64 `json:"power_mw"`
	Efficiency    float64 `json:"efficiency"`
	OperatingCost float64 `json:"operating_cost"` // $/MWh charged or discharged
	InitialSoCMWh float64 `json:"initial_soc_mwh"`
}

// ReliabilityPolicy groups the system-wide reliability and environmental
// limits.
type ReliabilityPolicy struct {
	ReserveFraction float64 `json:"reserve_fraction"`
	EmissionCap     float64 `json:"emission_cap"`
}

// HasEmissionCap reports whether the emission constraint is active.
func (p ReliabilityPolicy) HasEmissionCap() bool { return !math.IsInf(p.EmissionCap, 1) }

// InitialCommitment is the commitment state assumed before hour 1.
type InitialCommitment string

const (
	// InitialOff assumes every unit is off before hour 1, so a unit
	// committed at hour 1 incurs a start-up.
	InitialOff InitialCommitment = "off"
	// InitialOn assumes every unit is on before hour 1.
	InitialOn InitialCommitment = "on"
	// InitialFree leaves hour 1 unconstrained by history.
	InitialFree InitialCommitment = "free"
)

// Options holds the configurable boundary conditions.
type Options struct {
	InitialCommitment InitialCommitment `json:"initial_commitment"`
}

// Instance is a complete day-ahead planning problem.
type Instance struct {
	Name      string            `json:"name"`
	Start     time.Time         `json:"start"`
	Horizon   TimeHorizon       `json:"horizon"`
	Units     []FossilUnit      `json:"units"`
	Renewable RenewableProfile  `json:"renewable"`
	Battery   Battery           `json:"battery"`
	DemandMW  []float64         `json:"demand_mw"`
	Policy    ReliabilityPolicy `json:"policy"`
	Options   Options           `json:"options"`
}

// UnitName returns the label of unit f, falling back to G<f+1>.
func (in Instance) UnitName(f int) string {
	if f >= 0 && f < len(in.Units) && in.Units[f].Name != "" {
		return in.Units[f].Name
	}
	return fmt.Sprintf("G%d", f+1)
}

// Demand returns the demand at hour t (1-based).
func (in Instance) Demand(t int) float64 { return in.DemandMW[t-1] }

// Availability returns the renewable availability at hour t (1-based).
func (in Instance) Availability(t int) float64 { return in.Renewable.AvailabilityMW[t-1] }

// InitialCommitment returns the configured boundary condition, defaulting to
// InitialOff.
func (in Instance) InitialCommitment() InitialCommitment {
	if in.Options.InitialCommitment == "" {
		return InitialOff
	}
	return in.Options.InitialCommitment
}

// HourStart returns the wall-clock start of hour t. A zero Start maps hour 1
// to the Unix epoch so that the result stays deterministic.
func (in Instance) HourStart(t int) time.Time {
	base := in.Start
	if base.IsZero() {
		base = time.Unix(0, 0).UTC()
	}
	return base.Add(time.Duration(t-1) * time.Hour)
}

// TotalCapacity returns the summed fossil capacity.
func (in Instance) TotalCapacity() float64 {
	var s float64
	for _, u := range in.Units {
		s += u.CapacityMW
	}
	return s
}
