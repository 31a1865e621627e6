package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/scanplan/core/events"
	coremetrics "github.com/kilianp07/scanplan/core/metrics"
	"github.com/kilianp07/scanplan/core/model"
	"github.com/kilianp07/scanplan/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records machine load
// and waiting time metrics for every published schedule.
// It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				e, ok := ev.(events.ScheduleEvent)
				if !ok {
					continue
				}
				if r, ok := sink.(coremetrics.MachineLoadRecorder); ok {
					_ = r.RecordMachineLoad(MachineLoads(e.Schedule, e.Time))
				}
				if r, ok := sink.(coremetrics.WaitRecorder); ok {
					_ = r.RecordWait(Waits(e.Added, e.CheckIn))
				}
			}
		}
	}()
}

// MachineLoads sums booked minutes per machine. Maintenance blocks count as
// booked time. The result is ordered by machine.
func MachineLoads(schedule []model.ScheduleEntry, at time.Time) []coremetrics.MachineLoad {
	groups, machines := model.GroupByMachine(schedule)
	out := make([]coremetrics.MachineLoad, 0, len(machines))
	for _, m := range machines {
		l := coremetrics.MachineLoad{Machine: m, Time: at}
		for _, e := range groups[m] {
			if !e.IsMaintenance() && l.ScanType == "" {
				l.ScanType = e.ScanType
			}
			l.Entries++
			l.BookedMinutes += e.Duration
		}
		out = append(out, l)
	}
	return out
}

// Waits returns the check-in to start delay of each scheduled scan. Entries
// without a known check-in are skipped.
func Waits(entries []model.ScheduleEntry, checkIn map[string]time.Time) []coremetrics.WaitEvent {
	var out []coremetrics.WaitEvent
	for _, e := range entries {
		c, ok := checkIn[e.ScanID]
		if e.IsMaintenance() || !ok {
			continue
		}
		out = append(out, coremetrics.WaitEvent{ScanType: e.ScanType, Priority: e.Priority, Wait: e.Start.Sub(c)})
	}
	return out
}
