package metrics

import (
	"errors"
	"math"

	coremetrics "github.com/kilianp07/ucplan/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink exposes planning runs as Prometheus metrics.
type PromSink struct {
	solves     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	objective  *prometheus.GaugeVec
	nodes      *prometheus.GaugeVec
	energy     *prometheus.GaugeVec
	emissions  *prometheus.GaugeVec
	startUps   *prometheus.GaugeVec
	violations *prometheus.CounterVec
}

// NewPromSink registers planner metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uc_solves_total",
			Help: "Total number of unit commitment solves by status",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uc_solve_duration_seconds",
			Help:    "Wall time of unit commitment solves",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"status"}),
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uc_objective_cost",
			Help: "Total cost of the last optimal schedule",
		}, []string{"instance"}),
		nodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uc_solver_nodes",
			Help: "Branch and bound nodes explored by the last solve",
		}, []string{"instance"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uc_schedule_energy_mwh",
			Help: "Energy totals of the last optimal schedule",
		}, []string{"instance", "kind"}),
		emissions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uc_schedule_emissions",
			Help: "Emissions of the last optimal schedule",
		}, []string{"instance"}),
		startUps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uc_schedule_start_ups",
			Help: "Unit start-ups in the last optimal schedule",
		}, []string{"instance"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uc_verification_violations_total",
			Help: "Schedule verification violations by rule",
		}, []string{"rule"}),
	}
	var err error
	if s.solves, err = register(reg, s.solves); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, s.objective); err != nil {
		return nil, err
	}
	if s.nodes, err = register(reg, s.nodes); err != nil {
		return nil, err
	}
	if s.energy, err = register(reg, s.energy); err != nil {
		return nil, err
	}
	if s.emissions, err = register(reg, s.emissions); err != nil {
		return nil, err
	}
	if s.startUps, err = register(reg, s.startUps); err != nil {
		return nil, err
	}
	if s.violations, err = register(reg, s.violations); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSolve counts the solve and, for runs with a value, sets the cost
// gauge.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Status).Inc()
	s.duration.WithLabelValues(ev.Status).Observe(ev.Duration.Seconds())
	s.nodes.WithLabelValues(ev.Instance).Set(float64(ev.Nodes))
	if ev.Status == "optimal" && !math.IsInf(ev.Objective, 0) && !math.IsNaN(ev.Objective) {
		s.objective.WithLabelValues(ev.Instance).Set(ev.Objective)
	}
	return nil
}

// RecordSchedule publishes the schedule summary.
func (s *PromSink) RecordSchedule(ev coremetrics.ScheduleEvent) error {
	if ev.Schedule == nil {
		return nil
	}
	sum := ev.Schedule.Summary
	for kind, v := range map[string]float64{
		"fossil":     sum.FossilMWh,
		"renewable":  sum.RenewableMWh,
		"curtailed":  sum.CurtailedMWh,
		"charged":    sum.ChargedMWh,
		"discharged": sum.DischargedMWh,
	} {
		s.energy.WithLabelValues(ev.Instance, kind).Set(v)
	}
	s.emissions.WithLabelValues(ev.Instance).Set(sum.Emissions)
	s.startUps.WithLabelValues(ev.Instance).Set(float64(sum.StartUps))
	return nil
}

// RecordVerification counts violations per rule.
func (s *PromSink) RecordVerification(ev coremetrics.VerificationEvent) error {
	for _, v := range ev.Violations {
		s.violations.WithLabelValues(v.Rule).Inc()
	}
	return nil
}
