package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/ucplan/core/events"
	"github.com/kilianp07/ucplan/core/formulation"
	"github.com/kilianp07/ucplan/core/logger"
	coremetrics "github.com/kilianp07/ucplan/core/metrics"
	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/core/monitoring"
	"github.com/kilianp07/ucplan/core/runlog"
	"github.com/kilianp07/ucplan/core/schedule"
	"github.com/kilianp07/ucplan/internal/eventbus"
)

// Run is the result of one planning run.
type Run struct {
	ID         string               `json:"id"`
	Instance   model.Instance       `json:"-"`
	Outcome    schedule.Outcome     `json:"outcome"`
	Stats      formulation.Stats    `json:"stats"`
	Violations []schedule.Violation `json:"violations,omitempty"`
	Started    time.Time            `json:"started"`
	Duration   time.Duration        `json:"duration_ns"`
}

// Planner formulates, solves and interprets instances, then reports each run
// to the metrics sink, the run log and the event bus.
type Planner struct {
	solver    milp.Solver
	sink      coremetrics.MetricsSink
	store     runlog.Store
	bus       *eventbus.Bus[events.PlanCompleted]
	logger    logger.Logger
	monitor   monitoring.Monitor
	timeout   time.Duration
	verify    bool
	tolerance float64
	newID     func() string
	now       func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithMetrics records solve and verification events on sink.
func WithMetrics(sink coremetrics.MetricsSink) Option { return func(p *Planner) { p.sink = sink } }

// WithRunLog appends a record per run to store.
func WithRunLog(store runlog.Store) Option { return func(p *Planner) { p.store = store } }

// WithBus publishes a PlanCompleted event per run.
func WithBus(bus *eventbus.Bus[events.PlanCompleted]) Option {
	return func(p *Planner) { p.bus = bus }
}

func WithLogger(l logger.Logger) Option { return func(p *Planner) { p.logger = l } }

// WithMonitor reports formulation errors and failed solves to m.
func WithMonitor(m monitoring.Monitor) Option { return func(p *Planner) { p.monitor = m } }

// WithTimeout bounds every solve. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(p *Planner) { p.timeout = d } }

// WithVerification re-checks optimal schedules within tol.
func WithVerification(tol float64) Option {
	return func(p *Planner) {
		p.verify = true
		p.tolerance = tol
	}
}

// NewPlanner returns a Planner solving with s.
func NewPlanner(s milp.Solver, opts ...Option) (*Planner, error) {
	if s == nil {
		return nil, errors.New("planner: nil solver")
	}
	p := &Planner{
		solver:    s,
		sink:      coremetrics.NopSink{},
		logger:    logger.Nop{},
		tolerance: schedule.DefaultTolerance,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.sink == nil {
		p.sink = coremetrics.NopSink{}
	}
	p.logger = logger.OrNop(p.logger)
	p.monitor = monitoring.OrNop(p.monitor)
	return p, nil
}

// Plan solves one instance. Infeasible, unbounded and interrupted solves are
// reported through the run's Outcome; the error is reserved for instances
// that cannot be formulated.
func (p *Planner) Plan(ctx context.Context, in model.Instance) (Run, error) {
	run := Run{ID: p.newID(), Instance: in, Started: p.now()}
	f, err := formulation.Formulate(in)
	if err != nil {
		err = fmt.Errorf("formulate %q: %w", in.Name, err)
		p.monitor.CaptureException(err, map[string]string{"run_id": run.ID, "instance": in.Name})
		return run, err
	}
	run.Stats = f.Stats()
	p.logger.Debugw("solving", map[string]any{
		"run_id":      run.ID,
		"instance":    in.Name,
		"variables":   run.Stats.Variables,
		"binaries":    run.Stats.Binaries,
		"constraints": run.Stats.Constraints,
	})

	res := p.solve(ctx, f.Model)
	run.Duration = p.now().Sub(run.Started)
	run.Outcome = schedule.Interpret(f, res)
	p.report(run)

	if p.verify && run.Outcome.Optimal() {
		run.Violations = schedule.Verify(in, run.Outcome.Schedule, p.tolerance)
		if len(run.Violations) > 0 {
			p.logger.Warnf("run %s: %d verification violations, first: %s", run.ID, len(run.Violations), run.Violations[0])
		}
		if vr, ok := p.sink.(coremetrics.VerificationRecorder); ok {
			if err := vr.RecordVerification(coremetrics.VerificationEvent{
				RunID: run.ID, Instance: in.Name, Violations: run.Violations, Time: p.now(),
			}); err != nil {
				p.logger.Errorf("verification metrics error: %v", err)
			}
		}
	}
	p.record(ctx, run, res)
	if p.bus != nil {
		p.bus.Publish(events.PlanCompleted{
			RunID: run.ID, Instance: in, Outcome: run.Outcome, Started: run.Started, Duration: run.Duration,
		})
	}
	p.logger.Infof("run %s: %s %s in %s (%d nodes)", run.ID, in.Name, run.Outcome.Status, run.Duration, res.Nodes)
	return run, nil
}

// failures are the statuses that point at the solver or its limits rather
// than at the instance.
var failures = map[milp.Status]bool{
	milp.StatusError:     true,
	milp.StatusTimeout:   true,
	milp.StatusNodeLimit: true,
	milp.StatusUnknown:   true,
}

func (p *Planner) report(run Run) {
	d := run.Outcome.Diagnostic
	if d == nil || !failures[run.Outcome.Status] {
		return
	}
	p.monitor.CaptureException(fmt.Errorf("plan %s: %s: %s", run.Instance.Name, d.Status, d.Message), map[string]string{
		"run_id":   run.ID,
		"instance": run.Instance.Name,
		"status":   d.Status.String(),
	})
}

func (p *Planner) solve(ctx context.Context, m *milp.Model) milp.Result {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	res, err := p.solver.Solve(ctx, m)
	if err != nil {
		p.logger.Errorf("solver error: %v", err)
		return milp.Result{Status: milp.StatusError, Message: err.Error()}
	}
	return res
}

func (p *Planner) record(ctx context.Context, run Run, res milp.Result) {
	ev := coremetrics.SolveEvent{
		RunID:       run.ID,
		Instance:    run.Instance.Name,
		Status:      run.Outcome.Status.String(),
		Objective:   res.Objective,
		Bound:       res.Bound,
		Nodes:       res.Nodes,
		Variables:   run.Stats.Variables,
		Binaries:    run.Stats.Binaries,
		Constraints: run.Stats.Constraints,
		Duration:    run.Duration,
		Time:        p.now(),
	}
	if !res.HasValues {
		ev.Objective = 0
	}
	if err := p.sink.RecordSolve(ev); err != nil {
		p.logger.Errorf("solve metrics error: %v", err)
	}
	if p.store == nil {
		return
	}
	rec := runlog.Record{
		ID:         run.ID,
		Timestamp:  run.Started,
		Instance:   run.Instance.Name,
		Digest:     runlog.Digest(run.Instance),
		Status:     run.Outcome.Status.String(),
		Nodes:      res.Nodes,
		DurationMS: float64(run.Duration) / float64(time.Millisecond),
		Violations: len(run.Violations),
	}
	if s := run.Outcome.Schedule; s != nil {
		obj := s.TotalCost
		rec.Objective = &obj
	}
	if d := run.Outcome.Diagnostic; d != nil {
		rec.Message = d.Message
	}
	if err := p.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Warnf("run log append: %v", err)
	}
}

// PlanAll solves the instances concurrently, at most workers at a time, and
// returns the runs in input order. The first formulation error cancels the
// remaining runs.
func (p *Planner) PlanAll(ctx context.Context, ins []model.Instance, workers int) ([]Run, error) {
	runs := make([]Run, len(ins))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, in := range ins {
		g.Go(func() error {
			run, err := p.Plan(gctx, in)
			runs[i] = run
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return runs, err
	}
	return runs, nil
}
