package metrics

import (
	"time"

	"github.com/kilianp07/ucplan/core/schedule"
)

// SolveEvent describes one solver invocation.
type SolveEvent struct {
	RunID       string
	Instance    string
	Status      string
	Objective   float64
	Bound       float64
	Nodes       int
	Variables   int
	Binaries    int
	Constraints int
	Duration    time.Duration
	Time        time.Time
}

// MetricsSink records solver statistics.
type MetricsSink interface {
	RecordSolve(ev SolveEvent) error
}

// ScheduleEvent carries the schedule of an optimal run. Start is the
// timestamp of hour 1.
type ScheduleEvent struct {
	RunID    string
	Instance string
	Start    time.Time
	Schedule *schedule.Schedule
	Time     time.Time
}

// ScheduleRecorder records optimal schedules.
type ScheduleRecorder interface {
	RecordSchedule(ev ScheduleEvent) error
}

// VerificationEvent reports the violations found when re-checking a
// schedule.
type VerificationEvent struct {
	RunID      string
	Instance   string
	Violations []schedule.Violation
	Time       time.Time
}

// VerificationRecorder records verification results.
type VerificationRecorder interface {
	RecordVerification(ev VerificationEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error               { return nil }
func (NopSink) RecordSchedule(ScheduleEvent) error         { return nil }
func (NopSink) RecordVerification(VerificationEvent) error { return nil }
