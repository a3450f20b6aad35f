package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/ucplan/core/metrics"
	"github.com/kilianp07/ucplan/infra/logger"
)

// InfluxSink writes solve statistics and hourly schedules to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordSolve writes one uc_solve point.
func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("uc_solve").
		AddTag("instance", ev.Instance).
		AddTag("status", ev.Status).
		AddTag("run_id", ev.RunID).
		AddField("nodes", ev.Nodes).
		AddField("variables", ev.Variables).
		AddField("binaries", ev.Binaries).
		AddField("constraints", ev.Constraints).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	addFinite(p, "objective", ev.Objective)
	addFinite(p, "bound", ev.Bound)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSchedule writes one uc_schedule_hour point per hour and one
// uc_unit_dispatch point per unit and hour, stamped at the start of the hour.
func (s *InfluxSink) RecordSchedule(ev coremetrics.ScheduleEvent) error {
	if ev.Schedule == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(ev.Schedule.Hours)*2)
	for _, h := range ev.Schedule.Hours {
		at := ev.Start.Add(time.Duration(h.Hour-1) * time.Hour)
		points = append(points, write.NewPointWithMeasurement("uc_schedule_hour").
			AddTag("instance", ev.Instance).
			AddTag("run_id", ev.RunID).
			AddField("demand_mw", round3(h.DemandMW)).
			AddField("fossil_mw", round3(h.FossilMW())).
			AddField("renewable_mw", round3(h.RenewableUsedMW)).
			AddField("curtailed_mw", round3(h.CurtailedMW)).
			AddField("charge_mw", round3(h.ChargeMW)).
			AddField("discharge_mw", round3(h.DischargeMW)).
			AddField("soc_mwh", round3(h.StateOfChargeMWh)).
			SetTime(at))
		for _, u := range h.Units {
			points = append(points, write.NewPointWithMeasurement("uc_unit_dispatch").
				AddTag("instance", ev.Instance).
				AddTag("run_id", ev.RunID).
				AddTag("unit", u.Name).
				AddField("committed", u.Committed).
				AddField("generation_mw", round3(u.GenerationMW)).
				SetTime(at))
		}
	}
	if len(points) == 0 {
		return nil
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordVerification writes one uc_verification point with the violation
// count.
func (s *InfluxSink) RecordVerification(ev coremetrics.VerificationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("uc_verification").
		AddTag("instance", ev.Instance).
		AddTag("run_id", ev.RunID).
		AddField("violations", len(ev.Violations)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// addFinite skips values line protocol cannot carry.
func addFinite(p *write.Point, name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	p.AddField(name, round3(v))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
