package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/ucplan/core/events"
	coremetrics "github.com/kilianp07/ucplan/core/metrics"
	"github.com/kilianp07/ucplan/infra/logger"
	"github.com/kilianp07/ucplan/internal/eventbus"
)

// StartScheduleCollector subscribes to the bus and forwards the schedule of
// every optimal run to sink when it records schedules. It returns a channel
// closed once the collector has stopped, which happens when ctx is canceled
// or the bus is closed.
func StartScheduleCollector(ctx context.Context, bus *eventbus.Bus[events.PlanCompleted], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	rec, ok := sink.(coremetrics.ScheduleRecorder)
	if bus == nil || !ok {
		close(done)
		return done
	}
	log := logger.New("schedule-collector")
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
				if !ev.Optimal() {
					continue
				}
				err := rec.RecordSchedule(coremetrics.ScheduleEvent{
					RunID:    ev.RunID,
					Instance: ev.Instance.Name,
					Start:    ev.Instance.HourStart(1),
					Schedule: ev.Outcome.Schedule,
					Time:     time.Now(),
				})
				if err != nil {
					log.Warnf("record schedule %s: %v", ev.RunID, err)
				}
			}
		}
	}()
	return done
}
