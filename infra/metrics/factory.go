package metrics

import (
	"errors"

	"github.com/kilianp07/ucplan/core/factory"
	coremetrics "github.com/kilianp07/ucplan/core/metrics"
)

// InfluxConfig is the conf block of an "influx" sink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

func (c InfluxConfig) Validate() error {
	if c.URL == "" || c.Bucket == "" {
		return errors.New("influx sink needs url and bucket")
	}
	return nil
}

func init() {
	coremetrics.MustRegisterMetricsSink("nop", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, factory.Decode(conf, &struct{}{})
	})
	coremetrics.MustRegisterMetricsSink("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		if err := factory.Decode(conf, &struct{}{}); err != nil {
			return nil, err
		}
		return NewPromSink()
	})
	// An unreachable InfluxDB degrades to a NopSink rather than failing start-up.
	coremetrics.MustRegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}
