package scenario

import (
	"errors"
	"fmt"
)

// Config drives the synthetic instance generator. Zero fields take the
// defaults of SetDefaults.
type Config struct {
	Seed    int64 `json:"seed"`
	Horizon int   `json:"horizon"`
	Units   int   `json:"units"`

	MinCapacityMW float64 `json:"min_capacity_mw"`
	MaxCapacityMW float64 `json:"max_capacity_mw"`
	MinCost       float64 `json:"min_cost"`
	MaxCost       float64 `json:"max_cost"`
	// MaxStartUpCost is drawn per MW of capacity.
	MaxStartUpCost  float64 `json:"max_start_up_cost"`
	MaxMinUpHours   int     `json:"max_min_up_hours"`
	MaxMinDownHours int     `json:"max_min_down_hours"`
	// RampFraction sets each unit's ramp limit as a share of its capacity.
	// A negative value generates units without ramp limits.
	RampFraction      float64 `json:"ramp_fraction"`
	MaxEmissionFactor float64 `json:"max_emission_factor"`

	// PeakLoadFactor is the peak demand as a share of the fleet capacity.
	PeakLoadFactor float64 `json:"peak_load_factor"`
	// RenewableShare is the solar peak as a share of the demand peak.
	RenewableShare float64 `json:"renewable_share"`

	BatteryCapacityMWh float64 `json:"battery_capacity_mwh"`
	BatteryPowerMW     float64 `json:"battery_power_mw"`
	BatteryEfficiency  float64 `json:"battery_efficiency"`
	BatteryCost        float64 `json:"battery_cost"`

	ReserveFraction float64 `json:"reserve_fraction"`
	// EmissionCap of zero leaves emissions unconstrained.
	EmissionCap float64 `json:"emission_cap"`
	JitterPct   float64 `json:"jitter_pct"`
}

// SetDefaults applies fallback values for optional fields.
func (c *Config) SetDefaults() {
	if c.Horizon <= 0 {
		c.Horizon = 24
	}
	if c.Units <= 0 {
		c.Units = 3
	}
	if c.MinCapacityMW == 0 {
		c.MinCapacityMW = 50
	}
	if c.MaxCapacityMW == 0 {
		c.MaxCapacityMW = 200
	}
	if c.MinCost == 0 {
		c.MinCost = 20
	}
	if c.MaxCost == 0 {
		c.MaxCost = 80
	}
	if c.MaxStartUpCost == 0 {
		c.MaxStartUpCost = 10
	}
	if c.MaxMinUpHours <= 0 {
		c.MaxMinUpHours = 4
	}
	if c.MaxMinDownHours <= 0 {
		c.MaxMinDownHours = 3
	}
	if c.RampFraction == 0 {
		c.RampFraction = 0.5
	}
	if c.MaxEmissionFactor == 0 {
		c.MaxEmissionFactor = 0.9
	}
	if c.PeakLoadFactor == 0 {
		c.PeakLoadFactor = 0.7
	}
	if c.RenewableShare == 0 {
		c.RenewableShare = 0.3
	}
	if c.BatteryCapacityMWh == 0 {
		c.BatteryCapacityMWh = 100
	}
	if c.BatteryPowerMW == 0 {
		c.BatteryPowerMW = 25
	}
	if c.BatteryEfficiency == 0 {
		c.BatteryEfficiency = 0.9
	}
	if c.BatteryCost == 0 {
		c.BatteryCost = 2
	}
	if c.ReserveFraction == 0 {
		c.ReserveFraction = 0.1
	}
	if c.JitterPct == 0 {
		c.JitterPct = 0.1
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.MinCapacityMW <= 0 || c.MinCapacityMW > c.MaxCapacityMW {
		return fmt.Errorf("capacity range [%g, %g] invalid", c.MinCapacityMW, c.MaxCapacityMW)
	}
	if c.MinCost < 0 || c.MinCost > c.MaxCost {
		return fmt.Errorf("cost range [%g, %g] invalid", c.MinCost, c.MaxCost)
	}
	if c.PeakLoadFactor <= 0 || c.PeakLoadFactor*(1+c.ReserveFraction) > 1 {
		return errors.New("peak_load_factor with reserve must stay within fleet capacity")
	}
	if c.BatteryEfficiency <= 0 || c.BatteryEfficiency > 1 {
		return errors.New("battery_efficiency must be in (0, 1]")
	}
	if c.ReserveFraction < 0 || c.ReserveFraction > 1 {
		return errors.New("reserve_fraction must be in [0, 1]")
	}
	if c.JitterPct < 0 || c.JitterPct >= 1 {
		return errors.New("jitter_pct must be in [0, 1)")
	}
	if c.EmissionCap < 0 {
		return errors.New("emission_cap must be >= 0")
	}
	return nil
}
