// Package planner runs the formulate, solve and interpret pipeline for
// day-ahead instances. Every run is reported to metrics, the run log and the
// event bus; failed solves also reach the error monitor.
package planner
