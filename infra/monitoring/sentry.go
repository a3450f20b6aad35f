package monitoring

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	coremon "github.com/kilianp07/ucplan/core/monitoring"
)

// SentryConfig enables error reporting when DSN is set. Tags are attached to
// every captured event.
type SentryConfig struct {
	DSN              string            `json:"dsn"`
	Environment      string            `json:"environment"`
	Release          string            `json:"release"`
	TracesSampleRate float64           `json:"traces_sample_rate"`
	Tags             map[string]string `json:"tags"`
}

func (c SentryConfig) Validate() error {
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return errors.New("traces_sample_rate must be within [0,1]")
	}
	return nil
}

// SentryMonitor reports to Sentry through its own hub.
type SentryMonitor struct {
	hub *sentry.Hub
}

// NewSentryMonitor returns a NopMonitor when no DSN is configured.
func NewSentryMonitor(cfg SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: cfg.TracesSampleRate,
	})
	if err != nil {
		return nil, err
	}
	scope := sentry.NewScope()
	scope.SetTag("service", "ucplan")
	scope.SetTags(cfg.Tags)
	return &SentryMonitor{hub: sentry.NewHub(client, scope)}, nil
}

// CaptureException sends err with tags added to the monitor's own.
func (m *SentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	m.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		m.hub.CaptureException(err)
	})
}

// Recover reports a panic and re-panics. It must be deferred directly.
func (m *SentryMonitor) Recover() {
	if r := recover(); r != nil {
		m.hub.Recover(r)
		m.hub.Flush(2 * time.Second)
		panic(r)
	}
}

func (m *SentryMonitor) Flush(timeout time.Duration) { m.hub.Flush(timeout) }
