package config

import (
	"errors"
	"time"
)

// PlannerConfig tunes the planning service around the solver.
type PlannerConfig struct {
	// TimeoutSeconds bounds each solve. Zero means no limit beyond the
	// solver's own.
	TimeoutSeconds float64 `json:"timeout_seconds"`
	// Verify re-checks every optimal schedule and records violations.
	Verify bool `json:"verify"`
	// Tolerance used by verification.
	Tolerance float64 `json:"tolerance"`
	// Workers bounds the instances solved concurrently by the plan command.
	Workers int `json:"workers"`
	// BusBuffer is the per-subscriber buffer of the run event bus.
	BusBuffer int `json:"bus_buffer"`
}

func (c *PlannerConfig) SetDefaults() {
	if c.Tolerance <= 0 {
		c.Tolerance = 1e-3
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BusBuffer <= 0 {
		c.BusBuffer = 16
	}
}

func (c PlannerConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must be >= 0")
	}
	return nil
}

// Timeout returns the solve timeout, zero when unbounded.
func (c PlannerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}
