// Package infra contains technical adapters: the branch-and-bound solver,
// MQTT publishing, metrics exporters, error monitoring and logging. These
// packages depend only on the interfaces defined in the core packages.
package infra
