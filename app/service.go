package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/ucplan/api"
	"github.com/kilianp07/ucplan/config"
	"github.com/kilianp07/ucplan/core/events"
	coremetrics "github.com/kilianp07/ucplan/core/metrics"
	"github.com/kilianp07/ucplan/core/milp"
	coremon "github.com/kilianp07/ucplan/core/monitoring"
	"github.com/kilianp07/ucplan/core/planner"
	"github.com/kilianp07/ucplan/core/runlog"
	"github.com/kilianp07/ucplan/infra/logger"
	"github.com/kilianp07/ucplan/infra/metrics"
	"github.com/kilianp07/ucplan/infra/monitoring"
	"github.com/kilianp07/ucplan/infra/mqtt"
	_ "github.com/kilianp07/ucplan/infra/solver"
	"github.com/kilianp07/ucplan/internal/eventbus"
)

// Service wires the planner to its sinks, the run log, the event bus and
// the optional MQTT publisher and HTTP API.
type Service struct {
	Planner   *planner.Planner
	cfg       *config.Config
	bus       *eventbus.Bus[events.PlanCompleted]
	sink      coremetrics.MetricsSink
	store     runlog.Store
	publisher *mqtt.SchedulePublisher
	monitor   coremon.Monitor
	log       logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	s, err := milp.NewSolver(cfg.Solver)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := runlog.NewStore(cfg.RunLog)
	if err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("sentry: %w", err)
	}
	svc := &Service{cfg: cfg, bus: eventbus.New[events.PlanCompleted](cfg.Planner.BusBuffer), sink: sink, store: store, monitor: mon, log: logg}
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewSchedulePublisher(cfg.MQTT)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	opts := []planner.Option{
		planner.WithMetrics(sink),
		planner.WithRunLog(store),
		planner.WithBus(svc.bus),
		planner.WithLogger(logger.New("planner")),
		planner.WithMonitor(mon),
		planner.WithTimeout(cfg.Planner.Timeout()),
	}
	if cfg.Planner.Verify {
		opts = append(opts, planner.WithVerification(cfg.Planner.Tolerance))
	}
	svc.Planner, err = planner.NewPlanner(s, opts...)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

// Start launches the bus consumers: the schedule collector feeding
// schedule-aware sinks and the MQTT publisher. The returned channel closes
// once all of them have stopped.
func (s *Service) Start(ctx context.Context) <-chan struct{} {
	waits := []<-chan struct{}{metrics.StartScheduleCollector(ctx, s.bus, s.sink)}
	if s.publisher != nil {
		waits = append(waits, s.publisher.Start(ctx, s.bus))
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, w := range waits {
			<-w
		}
	}()
	return done
}

// Serve starts the consumers, the Prometheus endpoint when configured and
// the HTTP API, and blocks until ctx is canceled.
func (s *Service) Serve(ctx context.Context) error {
	s.Start(ctx)
	promSeparate := s.cfg.Metrics.PrometheusAddr != "" && s.cfg.Metrics.PrometheusAddr != s.cfg.API.Addr
	if promSeparate {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	mux := api.NewMux(s.Planner, s.store, s.cfg.API.Token, s.cfg.API.MaxBodyBytes, !promSeparate)
	return api.Serve(ctx, s.cfg.API.Addr, mux)
}

// Close stops the bus and releases the publisher, the run log and closable
// sinks. Consumers started by Start drain once the bus is closed.
func (s *Service) Close() error {
	s.bus.Close()
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}
