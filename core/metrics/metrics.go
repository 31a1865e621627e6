package metrics

import "time"

// RunEvent summarizes one scheduling run.
type RunEvent struct {
	RunID    string
	Facility string
	// Status is the run outcome: ok, infeasible, timeout or error.
	Status       string
	SolverStatus string
	Requests     int
	Scheduled    int
	Deferred     int
	Rejected     int
	Skipped      int
	Entries      int
	Maintenance  int
	Warnings     int
	Objective    int64
	Nodes        int64
	SolveTime    time.Duration
	Duration     time.Duration
	Time         time.Time
}

// MetricsSink records scheduling runs for observability purposes.
type MetricsSink interface {
	RecordRun(ev RunEvent) error
}

// MachineLoad is the booked time of one machine after a run.
type MachineLoad struct {
	Machine       string
	ScanType      string
	Entries       int
	BookedMinutes int
	Time          time.Time
}

// MachineLoadRecorder records per-machine load.
type MachineLoadRecorder interface {
	RecordMachineLoad(loads []MachineLoad) error
}

// WaitEvent is the delay between check-in and scheduled start of one scan.
type WaitEvent struct {
	ScanType string
	Priority int
	Wait     time.Duration
}

// WaitRecorder records patient waiting times.
type WaitRecorder interface {
	RecordWait(waits []WaitEvent) error
}

// NopSink discards all metrics.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error               { return nil }
func (NopSink) RecordMachineLoad([]MachineLoad) error { return nil }
func (NopSink) RecordWait([]WaitEvent) error          { return nil }
