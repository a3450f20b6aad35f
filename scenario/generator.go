// Package scenario generates synthetic day-ahead instances for demos and
// load tests. Generation is deterministic for a given seed.
package scenario

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/infra/logger"
)

// Generator draws instances from a random source.
type Generator struct {
	cfg  Config
	log  logger.Logger
	rand *rand.Rand
	seq  int
}

// New creates a Generator seeded from cfg.Seed.
func New(cfg Config) *Generator {
	return NewWithSource(cfg, rand.NewSource(cfg.Seed))
}

// NewWithSource creates a Generator drawing from src.
func NewWithSource(cfg Config, src rand.Source) *Generator {
	cfg.SetDefaults()
	return &Generator{
		cfg:  cfg,
		log:  logger.New("scenario"),
		rand: rand.New(src),
	}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// Generate produces the next instance starting at start. An empty name is
// replaced by a sequence-based one.
func (g *Generator) Generate(name string, start time.Time) model.Instance {
	g.seq++
	if name == "" {
		name = fmt.Sprintf("scenario-%d", g.seq)
	}
	T := g.cfg.Horizon
	units := make([]model.FossilUnit, g.cfg.Units)
	var fleet float64
	for f := range units {
		units[f] = g.unit(f)
		fleet += units[f].CapacityMW
	}
	peak := g.cfg.PeakLoadFactor * fleet
	demand := make([]float64, T)
	avail := make([]float64, T)
	for t := 1; t <= T; t++ {
		hour := start.Add(time.Duration(t-1) * time.Hour).Hour()
		demand[t-1] = round1(g.jitter(peak*loadShape(hour), 0, peak))
		solar := g.cfg.RenewableShare * peak * solarShape(hour)
		avail[t-1] = round1(g.jitter(solar, 0, g.cfg.RenewableShare*peak))
	}
	in := model.Instance{
		Name:    name,
		Start:   start,
		Horizon: model.TimeHorizon(T),
		Units:   units,
		Renewable: model.RenewableProfile{
			AvailabilityMW: avail,
		},
		Battery: model.Battery{
			CapacityMWh:   g.cfg.BatteryCapacityMWh,
			PowerMW:       g.cfg.BatteryPowerMW,
			Efficiency:    g.cfg.BatteryEfficiency,
			OperatingCost: g.cfg.BatteryCost,
		},
		DemandMW: demand,
		Policy: model.ReliabilityPolicy{
			ReserveFraction: g.cfg.ReserveFraction,
			EmissionCap:     model.NoEmissionCap,
		},
	}
	if g.cfg.EmissionCap > 0 {
		in.Policy.EmissionCap = g.cfg.EmissionCap
	}
	g.log.Debugf("generated %s: %d units, %d hours, peak %.1f MW", name, len(units), T, peak)
	return in
}

func (g *Generator) unit(f int) model.FossilUnit {
	capacity := round1(g.randomFloat(g.cfg.MinCapacityMW, g.cfg.MaxCapacityMW))
	u := model.FossilUnit{
		Name:           fmt.Sprintf("G%d", f+1),
		CapacityMW:     capacity,
		Cost:           round1(g.randomFloat(g.cfg.MinCost, g.cfg.MaxCost)),
		StartUpCost:    math.Round(g.randomFloat(0, g.cfg.MaxStartUpCost) * capacity),
		MinUpHours:     1 + g.rand.Intn(g.cfg.MaxMinUpHours),
		MinDownHours:   1 + g.rand.Intn(g.cfg.MaxMinDownHours),
		RampLimitMW:    model.NoRampLimit,
		EmissionFactor: math.Round(g.randomFloat(0, g.cfg.MaxEmissionFactor)*100) / 100,
	}
	if g.cfg.RampFraction > 0 {
		u.RampLimitMW = round1(g.cfg.RampFraction * capacity)
	}
	return u
}

// loadShape is a daily demand profile in [0.55, 1] peaking at 18h.
func loadShape(hour int) float64 {
	return 0.775 + 0.225*math.Cos(2*math.Pi*float64(hour-18)/24)
}

// solarShape is zero at night and peaks at noon.
func solarShape(hour int) float64 {
	if hour < 6 || hour > 18 {
		return 0
	}
	return math.Sin(math.Pi * float64(hour-6) / 12)
}

func (g *Generator) randomFloat(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + g.rand.Float64()*(max-min)
}

func (g *Generator) jitter(v, min, max float64) float64 {
	v *= 1 + (g.rand.Float64()*2-1)*g.cfg.JitterPct
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
