package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/ucplan/core/events"
	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/core/schedule"
	"github.com/kilianp07/ucplan/infra/logger"
	"github.com/kilianp07/ucplan/internal/eventbus"
)

// Setpoint is the operating point of a unit for one hour.
type Setpoint struct {
	Hour         int       `json:"hour"`
	At           time.Time `json:"at"`
	Committed    bool      `json:"committed"`
	GenerationMW float64   `json:"generation_mw"`
}

// UnitPlan is published on <prefix>/<instance>/units/<unit>.
type UnitPlan struct {
	RunID     string     `json:"run_id"`
	Unit      string     `json:"unit"`
	Setpoints []Setpoint `json:"setpoints"`
}

// BatteryStep is the battery plan for one hour.
type BatteryStep struct {
	Hour             int       `json:"hour"`
	At               time.Time `json:"at"`
	ChargeMW         float64   `json:"charge_mw"`
	DischargeMW      float64   `json:"discharge_mw"`
	StateOfChargeMWh float64   `json:"state_of_charge_mwh"`
}

// BatteryPlan is published on <prefix>/<instance>/battery.
type BatteryPlan struct {
	RunID string        `json:"run_id"`
	Steps []BatteryStep `json:"steps"`
}

// StatusMessage is published on <prefix>/<instance>/status for every run.
type StatusMessage struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	TotalCost *float64  `json:"total_cost,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// SchedulePublisher publishes day-ahead plans to an MQTT broker.
type SchedulePublisher struct {
	cli     pahoClient
	prefix  string
	qos     byte
	retain  bool
	retries int
	backoff time.Duration
	logger  logger.Logger
}

// NewSchedulePublisher connects to the broker described by cfg.
func NewSchedulePublisher(cfg Config) (*SchedulePublisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	cli, err := connect(cfg, log)
	if err != nil {
		return nil, err
	}
	return &SchedulePublisher{
		cli:     cli,
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:     cfg.QoS,
		retain:  cfg.Retain,
		retries: cfg.MaxRetries,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:  log,
	}, nil
}

// Topic returns the topic for the given path below the instance.
func (p *SchedulePublisher) Topic(instance string, parts ...string) string {
	segs := []string{p.prefix, topicSegment(instance)}
	for _, s := range parts {
		segs = append(segs, topicSegment(s))
	}
	return strings.Join(segs, "/")
}

// topicSegment strips characters that would change the topic structure.
func topicSegment(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_").Replace(s)
}

// PublishPlan publishes the status of a run and, for optimal runs, one plan
// per unit and the battery plan.
func (p *SchedulePublisher) PublishPlan(ev events.PlanCompleted) error {
	name := ev.Instance.Name
	status := StatusMessage{RunID: ev.RunID, Status: ev.Outcome.Status.String(), Time: time.Now().UTC()}
	if s := ev.Outcome.Schedule; s != nil {
		cost := s.TotalCost
		status.TotalCost = &cost
	}
	if d := ev.Outcome.Diagnostic; d != nil {
		status.Message = d.Message
	}
	if err := p.publishJSON(p.Topic(name, "status"), status); err != nil {
		return err
	}
	s := ev.Outcome.Schedule
	if s == nil {
		return nil
	}
	for f := range ev.Instance.Units {
		plan := unitPlan(ev.RunID, ev.Instance, s, f)
		if err := p.publishJSON(p.Topic(name, "units", plan.Unit), plan); err != nil {
			return err
		}
	}
	return p.publishJSON(p.Topic(name, "battery"), batteryPlan(ev.RunID, ev.Instance, s))
}

func unitPlan(runID string, in model.Instance, s *schedule.Schedule, f int) UnitPlan {
	plan := UnitPlan{RunID: runID, Unit: in.UnitName(f), Setpoints: make([]Setpoint, 0, len(s.Hours))}
	for _, h := range s.Hours {
		if f >= len(h.Units) {
			continue
		}
		u := h.Units[f]
		plan.Setpoints = append(plan.Setpoints, Setpoint{
			Hour:         h.Hour,
			At:           in.HourStart(h.Hour),
			Committed:    u.Committed,
			GenerationMW: u.GenerationMW,
		})
	}
	return plan
}

func batteryPlan(runID string, in model.Instance, s *schedule.Schedule) BatteryPlan {
	plan := BatteryPlan{RunID: runID, Steps: make([]BatteryStep, 0, len(s.Hours))}
	for _, h := range s.Hours {
		plan.Steps = append(plan.Steps, BatteryStep{
			Hour:             h.Hour,
			At:               in.HourStart(h.Hour),
			ChargeMW:         h.ChargeMW,
			DischargeMW:      h.DischargeMW,
			StateOfChargeMWh: h.StateOfChargeMWh,
		})
	}
	return plan
}

func (p *SchedulePublisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		token := p.cli.Publish(topic, p.qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.retries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Start publishes every run completed on bus until ctx is canceled or the
// bus is closed. The returned channel is closed when it stops.
func (p *SchedulePublisher) Start(ctx context.Context, bus *eventbus.Bus[events.PlanCompleted]) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := p.PublishPlan(ev); err != nil {
					p.logger.Errorf("publish run %s: %v", ev.RunID, err)
				}
			}
		}
	}()
	return done
}

// Disconnect gracefully closes the MQTT connection.
func (p *SchedulePublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
