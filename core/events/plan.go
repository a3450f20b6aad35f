package events

import (
	"time"

	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/core/schedule"
)

// PlanCompleted is published once per planning run, whatever its status.
type PlanCompleted struct {
	RunID    string
	Instance model.Instance
	Outcome  schedule.Outcome
	Started  time.Time
	Duration time.Duration
}

// Optimal reports whether the run produced a schedule.
func (e PlanCompleted) Optimal() bool { return e.Outcome.Optimal() }
