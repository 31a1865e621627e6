package metrics

import (
	"github.com/kilianp07/scanplan/core/logger"
	coremetrics "github.com/kilianp07/scanplan/core/metrics"
)

// LogSink writes a one-line summary of every run to the logger. Failed runs
// are logged as warnings.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) RecordRun(ev coremetrics.RunEvent) error {
	if ev.Status != "ok" {
		s.log.Warnf("run %s on %s: %s (solver %s) after %s", ev.RunID, ev.Facility, ev.Status, ev.SolverStatus, ev.Duration)
		return nil
	}
	s.log.Infof("run %s on %s: %d scheduled, %d deferred, %d skipped, %d rejected, %d entries, objective %d, %d nodes in %s",
		ev.RunID, ev.Facility, ev.Scheduled, ev.Deferred, ev.Skipped, ev.Rejected, ev.Entries, ev.Objective, ev.Nodes, ev.SolveTime)
	return nil
}

// RecordMachineLoad logs per-machine bookings at debug level.
func (s *LogSink) RecordMachineLoad(loads []coremetrics.MachineLoad) error {
	for _, l := range loads {
		s.log.Debugw("machine load", map[string]any{
			"machine": l.Machine, "scan_type": l.ScanType,
			"entries": l.Entries, "booked_minutes": l.BookedMinutes,
		})
	}
	return nil
}
