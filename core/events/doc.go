// Package events defines the planner events emitted on the event bus.
//
// Available event types:
//   - PlanCompleted: a planning run finished, with its outcome
package events
