package model

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyHorizon        = errors.New("empty time horizon")
	ErrLengthMismatch      = errors.New("profile length does not match horizon")
	ErrNonPositiveCapacity = errors.New("capacity must be positive")
	ErrNegativeValue       = errors.New("value must be non-negative")
	ErrEfficiencyRange     = errors.New("efficiency must be in (0, 1]")
	ErrFractionRange       = errors.New("fraction must be in [0, 1]")
	ErrDuration            = errors.New("minimum duration must be at least one hour")
	ErrInitialCommitment   = errors.New("unknown initial commitment")
	ErrInitialSoC          = errors.New("initial state of charge outside [0, capacity]")
)

// ValidationError locates a construction error inside an instance.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, format string, args ...any) error {
	return &ValidationError{Field: fmt.Sprintf(format, args...), Err: err}
}

func nonNegative(v float64) bool { return !math.IsNaN(v) && v >= 0 }

// Validate checks the structural invariants of the instance. It returns the
// first violation found as a *ValidationError.
//
//gocyclo:ignore
func (in Instance) Validate() error {
	T := in.Horizon.Len()
	if T <= 0 {
		return invalid(ErrEmptyHorizon, "horizon")
	}
	if len(in.DemandMW) != T {
		return invalid(ErrLengthMismatch, "demand (got %d, want %d)", len(in.DemandMW), T)
	}
	if len(in.Renewable.AvailabilityMW) != T {
		return invalid(ErrLengthMismatch, "renewable availability (got %d, want %d)", len(in.Renewable.AvailabilityMW), T)
	}
	for i, d := range in.DemandMW {
		if !nonNegative(d) || math.IsInf(d, 0) {
			return invalid(ErrNegativeValue, "demand[%d]", i+1)
		}
	}
	for i, a := range in.Renewable.AvailabilityMW {
		if !nonNegative(a) || math.IsInf(a, 0) {
			return invalid(ErrNegativeValue, "renewable availability[%d]", i+1)
		}
	}
	if !nonNegative(in.Renewable.Cost) {
		return invalid(ErrNegativeValue, "renewable cost")
	}
	for f, u := range in.Units {
		name := in.UnitName(f)
		switch {
		case math.IsNaN(u.CapacityMW) || u.CapacityMW <= 0 || math.IsInf(u.CapacityMW, 0):
			return invalid(ErrNonPositiveCapacity, "unit %s capacity", name)
		case !nonNegative(u.Cost):
			return invalid(ErrNegativeValue, "unit %s cost", name)
		case !nonNegative(u.StartUpCost):
			return invalid(ErrNegativeValue, "unit %s start-up cost", name)
		case u.MinUpHours < 1:
			return invalid(ErrDuration, "unit %s min up", name)
		case u.MinDownHours < 1:
			return invalid(ErrDuration, "unit %s min down", name)
		case !nonNegative(u.RampLimitMW):
			return invalid(ErrNegativeValue, "unit %s ramp limit", name)
		case !nonNegative(u.EmissionFactor):
			return invalid(ErrNegativeValue, "unit %s emission factor", name)
		}
	}
	b := in.Battery
	switch {
	case !nonNegative(b.CapacityMWh) || math.IsInf(b.CapacityMWh, 0):
		return invalid(ErrNegativeValue, "battery capacity")
	case !nonNegative(b.PowerMW) || math.IsInf(b.PowerMW, 0):
		return invalid(ErrNegativeValue, "battery power")
	case math.IsNaN(b.Efficiency) || b.Efficiency <= 0 || b.Efficiency > 1:
		return invalid(ErrEfficiencyRange, "battery efficiency")
	case !nonNegative(b.OperatingCost):
		return invalid(ErrNegativeValue, "battery operating cost")
	case !nonNegative(b.InitialSoCMWh) || b.InitialSoCMWh > b.CapacityMWh:
		return invalid(ErrInitialSoC, "battery initial state of charge")
	}
	p := in.Policy
	if math.IsNaN(p.ReserveFraction) || p.ReserveFraction < 0 || p.ReserveFraction > 1 {
		return invalid(ErrFractionRange, "reserve fraction")
	}
	if !nonNegative(p.EmissionCap) {
		return invalid(ErrNegativeValue, "emission cap")
	}
	switch in.InitialCommitment() {
	case InitialOff, InitialOn, InitialFree:
	default:
		return invalid(ErrInitialCommitment, "initial commitment %q", in.Options.InitialCommitment)
	}
	return nil
}
