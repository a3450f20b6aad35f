package metrics

// Package metrics defines the sinks that observe planning runs. A sink
// records solver statistics through RecordSolve; sinks that also implement
// ScheduleRecorder receive the hourly schedule of optimal runs. Sinks are
// built from configuration by the factory helpers, which return a MultiSink
// automatically when several sinks are configured.
