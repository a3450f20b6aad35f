package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ucplan/core/events"
	coremetrics "github.com/kilianp07/ucplan/core/metrics"
	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/core/monitoring"
	"github.com/kilianp07/ucplan/core/runlog"
	"github.com/kilianp07/ucplan/core/schedule"
	"github.com/kilianp07/ucplan/infra/solver"
	"github.com/kilianp07/ucplan/internal/eventbus"
	"github.com/kilianp07/ucplan/scenario"
)

type recordingSink struct {
	mu      sync.Mutex
	solves  []coremetrics.SolveEvent
	verifs  []coremetrics.VerificationEvent
	failErr error
}

func (r *recordingSink) RecordSolve(ev coremetrics.SolveEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.solves = append(r.solves, ev)
	return r.failErr
}

func (r *recordingSink) RecordVerification(ev coremetrics.VerificationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifs = append(r.verifs, ev)
	return nil
}

func newPlanner(t *testing.T, opts ...Option) *Planner {
	t.Helper()
	p, err := NewPlanner(solver.New(solver.Config{}, nil), opts...)
	require.NoError(t, err)
	return p
}

func constant(T int, v float64) []float64 {
	out := make([]float64, T)
	for i := range out {
		out[i] = v
	}
	return out
}

func unit(name string, capacity, cost float64) model.FossilUnit {
	return model.FossilUnit{
		Name: name, CapacityMW: capacity, Cost: cost,
		MinUpHours: 1, MinDownHours: 1, RampLimitMW: model.NoRampLimit,
	}
}

func instance(name string, demand []float64, units ...model.FossilUnit) model.Instance {
	T := len(demand)
	return model.Instance{
		Name:      name,
		Horizon:   model.TimeHorizon(T),
		Units:     units,
		Renewable: model.RenewableProfile{AvailabilityMW: make([]float64, T)},
		Battery:   model.Battery{Efficiency: 1},
		DemandMW:  demand,
		Policy:    model.ReliabilityPolicy{EmissionCap: model.NoEmissionCap},
	}
}

func plan(t *testing.T, p *Planner, in model.Instance) Run {
	t.Helper()
	run, err := p.Plan(context.Background(), in)
	require.NoError(t, err)
	return run
}

func TestPlan_ScenarioA(t *testing.T) {
	p := newPlanner(t, WithVerification(schedule.DefaultTolerance))
	run := plan(t, p, instance("scenario-a", constant(24, 80), unit("G1", 100, 50)))

	require.True(t, run.Outcome.Optimal(), "status %s", run.Outcome.Status)
	s := run.Outcome.Schedule
	assert.InDelta(t, 96000, s.TotalCost, 1e-6)
	require.Len(t, s.Hours, 24)
	for _, h := range s.Hours {
		assert.True(t, h.Units[0].Committed, "hour %d", h.Hour)
		assert.InDelta(t, 80, h.Units[0].GenerationMW, 1e-6)
	}
	assert.Equal(t, 1, s.Summary.StartUps)
	assert.Empty(t, run.Violations)
}

func TestPlan_ScenarioBInfeasible(t *testing.T) {
	in := instance("scenario-b", []float64{80, 150, 80}, unit("G1", 100, 50))
	in.Renewable.AvailabilityMW = []float64{0, 20, 0}
	in.Battery = model.Battery{CapacityMWh: 10, PowerMW: 10, Efficiency: 1}

	run := plan(t, newPlanner(t), in)
	assert.Equal(t, milp.StatusInfeasible, run.Outcome.Status)
	assert.Nil(t, run.Outcome.Schedule)
	require.NotNil(t, run.Outcome.Diagnostic)
	assert.NotEmpty(t, run.Outcome.Diagnostic.Message)
}

func TestPlan_MinUpKeepsUnitOn(t *testing.T) {
	// Only hour 1 has demand. Units start off, so the unit must start at
	// hour 1, and its minimum up time holds it on through hour 3.
	g := unit("G1", 100, 10)
	g.MinUpHours = 3
	g.StartUpCost = 100
	in := instance("min-up", []float64{50, 0, 0, 0, 0, 0, 0, 0}, g)

	run := plan(t, newPlanner(t, WithVerification(schedule.DefaultTolerance)), in)
	require.True(t, run.Outcome.Optimal())
	s := run.Outcome.Schedule
	assert.InDelta(t, 600, s.TotalCost, 1e-6)
	assert.Empty(t, run.Violations)
	assert.Equal(t, 1, s.Summary.StartUps)

	on := func(h int) bool { return s.Hours[h-1].Units[0].Committed }
	first := 0
	for h := 1; h <= 8; h++ {
		if on(h) {
			first = h
			break
		}
	}
	assert.Equal(t, 1, first)
	assert.True(t, on(1), "hour 1")
	assert.True(t, on(2), "hour 2")
	assert.True(t, on(3), "hour 3")
	assert.InDelta(t, 0, s.Hours[1].Units[0].GenerationMW, 1e-6)
	assert.InDelta(t, 0, s.Hours[2].Units[0].GenerationMW, 1e-6)
}

func TestPlan_GeneratedDayAheadIsOptimal(t *testing.T) {
	in := scenario.New(scenario.Config{Seed: 1}).Generate("day-ahead", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.Equal(t, 24, in.Horizon.Len())
	require.Len(t, in.Units, 3)

	p := newPlanner(t, WithTimeout(10*time.Second), WithVerification(schedule.DefaultTolerance))
	run := plan(t, p, in)
	require.Equal(t, milp.StatusOptimal, run.Outcome.Status, "%+v", run.Outcome.Diagnostic)
	s := run.Outcome.Schedule
	require.Len(t, s.Hours, 24)
	assert.Positive(t, s.TotalCost)
	assert.Empty(t, run.Violations)
	for _, h := range s.Hours {
		supply := h.FossilMW() + h.RenewableUsedMW + h.DischargeMW - h.ChargeMW
		assert.InDelta(t, h.DemandMW, supply, 1e-4, "hour %d", h.Hour)
	}
}

func TestPlan_TimeoutInterruptsSolve(t *testing.T) {
	in := scenario.New(scenario.Config{Seed: 2, Horizon: 48, Units: 5}).Generate("two-day", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	p := newPlanner(t, WithTimeout(100*time.Millisecond))

	start := time.Now()
	run := plan(t, p, in)
	elapsed := time.Since(start)

	assert.Equal(t, milp.StatusTimeout, run.Outcome.Status)
	require.NotNil(t, run.Outcome.Diagnostic)
	assert.Contains(t, run.Outcome.Diagnostic.Message, "interrupted")
	assert.Less(t, elapsed, 3*time.Second)
}

func TestPlan_RampLimitShiftsToPeaker(t *testing.T) {
	base := unit("base", 100, 10)
	base.RampLimitMW = 30
	in := instance("ramp", []float64{20, 80}, base, unit("peaker", 100, 40))

	run := plan(t, newPlanner(t, WithVerification(schedule.DefaultTolerance)), in)
	require.True(t, run.Outcome.Optimal())
	s := run.Outcome.Schedule
	assert.InDelta(t, 1900, s.TotalCost, 1e-6)
	assert.InDelta(t, 50, s.Hours[1].Units[0].GenerationMW, 1e-6)
	assert.InDelta(t, 30, s.Hours[1].Units[1].GenerationMW, 1e-6)
	assert.Empty(t, run.Violations)
}

func TestPlan_EmissionCapIsAggregate(t *testing.T) {
	dirty := unit("dirty", 100, 10)
	dirty.EmissionFactor = 1
	in := instance("emissions", []float64{100, 100}, dirty, unit("clean", 100, 30))
	in.Policy.EmissionCap = 150

	run := plan(t, newPlanner(t, WithVerification(schedule.DefaultTolerance)), in)
	require.True(t, run.Outcome.Optimal())
	s := run.Outcome.Schedule
	assert.InDelta(t, 3000, s.TotalCost, 1e-6)
	assert.InDelta(t, 150, s.Summary.Emissions, 1e-6)
	assert.Empty(t, run.Violations)
}

func TestPlan_BatteryShiftsRenewableSurplus(t *testing.T) {
	in := instance("storage", constant(4, 50), unit("G1", 100, 20))
	in.Renewable.AvailabilityMW = []float64{80, 0, 0, 0}
	in.Battery = model.Battery{CapacityMWh: 40, PowerMW: 30, Efficiency: 0.9}

	run := plan(t, newPlanner(t, WithVerification(schedule.DefaultTolerance)), in)
	require.True(t, run.Outcome.Optimal())
	s := run.Outcome.Schedule
	assert.Less(t, s.TotalCost, 3000.0)
	assert.Greater(t, s.Hours[0].ChargeMW, 0.0)
	assert.Empty(t, run.Violations)
	for _, h := range s.Hours {
		supply := h.FossilMW() + h.RenewableUsedMW + h.DischargeMW - h.ChargeMW
		assert.InDelta(t, h.DemandMW, supply, 1e-6, "hour %d", h.Hour)
	}
}

func TestPlan_Idempotent(t *testing.T) {
	a := unit("a", 60, 20)
	a.StartUpCost = 50
	b := unit("b", 60, 25)
	b.MinUpHours = 2
	in := instance("repeat", []float64{40, 90, 70, 30}, a, b)
	in.Policy.ReserveFraction = 0.1

	p := newPlanner(t)
	first := plan(t, p, in)
	second := plan(t, p, in)
	require.True(t, first.Outcome.Optimal())
	require.True(t, second.Outcome.Optimal())
	assert.InDelta(t, first.Outcome.Schedule.TotalCost, second.Outcome.Schedule.TotalCost, 1e-9)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestPlan_InvalidInstance(t *testing.T) {
	in := instance("bad", []float64{10, 10}, unit("G1", 100, 10))
	in.Renewable.AvailabilityMW = []float64{1}
	sink := &recordingSink{}
	_, err := newPlanner(t, WithMetrics(sink)).Plan(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrLengthMismatch))
	assert.Empty(t, sink.solves)
}

func TestPlan_ReportsRun(t *testing.T) {
	sink := &recordingSink{failErr: errors.New("sink down")}
	store := runlog.NewMemoryStore()
	bus := eventbus.New[events.PlanCompleted](4)
	sub := bus.Subscribe()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p := newPlanner(t, WithMetrics(sink), WithRunLog(store), WithBus(bus), WithVerification(0.01))
	p.newID = func() string { return "run-1" }
	p.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	in := instance("report", []float64{30, 60}, unit("G1", 100, 10))
	run := plan(t, p, in)
	require.True(t, run.Outcome.Optimal())
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, time.Second, run.Duration)

	require.Len(t, sink.solves, 1)
	ev := sink.solves[0]
	assert.Equal(t, "optimal", ev.Status)
	assert.Equal(t, "report", ev.Instance)
	assert.InDelta(t, 900, ev.Objective, 1e-6)
	assert.Equal(t, run.Stats.Variables, ev.Variables)
	require.Len(t, sink.verifs, 1)
	assert.Empty(t, sink.verifs[0].Violations)

	recs, err := store.Query(context.Background(), runlog.Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "run-1", recs[0].ID)
	assert.Equal(t, runlog.Digest(in), recs[0].Digest)
	require.NotNil(t, recs[0].Objective)
	assert.InDelta(t, 900, *recs[0].Objective, 1e-6)
	assert.Equal(t, 1000.0, recs[0].DurationMS)

	select {
	case got := <-sub:
		assert.Equal(t, "run-1", got.RunID)
		assert.True(t, got.Optimal())
	default:
		t.Fatalf("no event published")
	}
}

func TestPlan_SolverErrorAndTimeout(t *testing.T) {
	in := instance("stub", []float64{10}, unit("G1", 100, 10))

	failing := milp.SolverFunc(func(context.Context, *milp.Model) (milp.Result, error) {
		return milp.Result{}, errors.New("matrix exploded")
	})
	p, err := NewPlanner(failing)
	require.NoError(t, err)
	run := plan(t, p, in)
	assert.Equal(t, milp.StatusError, run.Outcome.Status)
	require.NotNil(t, run.Outcome.Diagnostic)
	assert.Equal(t, "matrix exploded", run.Outcome.Diagnostic.Message)

	var hadDeadline bool
	waiting := milp.SolverFunc(func(ctx context.Context, _ *milp.Model) (milp.Result, error) {
		_, hadDeadline = ctx.Deadline()
		<-ctx.Done()
		return milp.Result{Status: milp.StatusTimeout, Nodes: 7}, nil
	})
	p, err = NewPlanner(waiting, WithTimeout(10*time.Millisecond))
	require.NoError(t, err)
	run = plan(t, p, in)
	assert.True(t, hadDeadline)
	assert.Equal(t, milp.StatusTimeout, run.Outcome.Status)
	assert.Equal(t, 7, run.Outcome.Diagnostic.Nodes)

	_, err = NewPlanner(nil)
	assert.Error(t, err)
}

type captureMonitor struct {
	monitoring.NopMonitor
	errs []error
	tags []map[string]string
}

func (c *captureMonitor) CaptureException(err error, tags map[string]string) {
	c.errs = append(c.errs, err)
	c.tags = append(c.tags, tags)
}

func TestPlan_MonitorCapturesFailures(t *testing.T) {
	mon := &captureMonitor{}
	failing := milp.SolverFunc(func(context.Context, *milp.Model) (milp.Result, error) {
		return milp.Result{Status: milp.StatusNodeLimit, Nodes: 3}, nil
	})
	p, err := NewPlanner(failing, WithMonitor(mon))
	require.NoError(t, err)
	plan(t, p, instance("stub", []float64{10}, unit("G1", 100, 10)))
	require.Len(t, mon.errs, 1)
	assert.Equal(t, "node_limit", mon.tags[0]["status"])
	assert.Equal(t, "stub", mon.tags[0]["instance"])

	bad := instance("bad", []float64{10}, unit("G1", 100, 10))
	bad.Renewable.AvailabilityMW = []float64{1, 2}
	_, err = p.Plan(context.Background(), bad)
	require.Error(t, err)
	require.Len(t, mon.errs, 2)

	// Infeasible instances are a planning answer, not a failure.
	p, err = NewPlanner(solver.New(solver.Config{}, nil), WithMonitor(mon))
	require.NoError(t, err)
	run := plan(t, p, instance("short", []float64{500}, unit("G1", 100, 10)))
	assert.Equal(t, milp.StatusInfeasible, run.Outcome.Status)
	assert.Len(t, mon.errs, 2)
}

func TestPlanAll(t *testing.T) {
	ins := []model.Instance{
		instance("one", []float64{10, 20}, unit("G1", 100, 10)),
		instance("two", []float64{30, 40}, unit("G1", 100, 10)),
		instance("three", []float64{50, 60}, unit("G1", 100, 10)),
	}
	runs, err := newPlanner(t).PlanAll(context.Background(), ins, 2)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, want := range []float64{300, 700, 1100} {
		require.True(t, runs[i].Outcome.Optimal())
		assert.InDelta(t, want, runs[i].Outcome.Schedule.TotalCost, 1e-6)
		assert.Equal(t, ins[i].Name, runs[i].Instance.Name)
	}

	ins[1].DemandMW = []float64{1}
	_, err = newPlanner(t).PlanAll(context.Background(), ins, 0)
	assert.Error(t, err)
}
