package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/scanplan/core/metrics"
)

// PromSink records scheduling runs in Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	solve     *prometheus.HistogramVec
	requests  *prometheus.CounterVec
	entries   prometheus.Gauge
	objective prometheus.Gauge
	booked    *prometheus.GaugeVec
	wait      *prometheus.HistogramVec
}

// NewPromSink registers run metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// register returns the already registered collector when c is a duplicate.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanplan_runs_total",
			Help: "Total number of scheduling runs by outcome",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanplan_run_duration_seconds",
			Help:    "Wall time of a scheduling run",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		solve: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanplan_solve_duration_seconds",
			Help:    "Time spent in the solver",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		}, []string{"solver_status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanplan_requests_total",
			Help: "Scan requests seen by the scheduler by outcome",
		}, []string{"outcome"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanplan_schedule_entries",
			Help: "Number of entries in the persisted schedule",
		}),
		objective: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanplan_solver_objective",
			Help: "Objective value of the last solved model",
		}),
		booked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scanplan_machine_booked_minutes",
			Help: "Booked minutes per machine in the persisted schedule",
		}, []string{"machine", "scan_type"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanplan_wait_minutes",
			Help:    "Minutes between check-in and scheduled start",
			Buckets: []float64{0, 15, 30, 60, 120, 240, 480, 1440, 2880, 10080},
		}, []string{"scan_type", "priority"}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.solve, err = register(reg, s.solve); err != nil {
		return nil, err
	}
	if s.requests, err = register(reg, s.requests); err != nil {
		return nil, err
	}
	if s.entries, err = register(reg, s.entries); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, s.objective); err != nil {
		return nil, err
	}
	if s.booked, err = register(reg, s.booked); err != nil {
		return nil, err
	}
	if s.wait, err = register(reg, s.wait); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordRun updates the run counters and histograms.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(ev.Status).Inc()
	s.duration.WithLabelValues(ev.Status).Observe(ev.Duration.Seconds())
	if ev.SolverStatus != "" {
		s.solve.WithLabelValues(ev.SolverStatus).Observe(ev.SolveTime.Seconds())
		s.objective.Set(float64(ev.Objective))
	}
	s.requests.WithLabelValues("scheduled").Add(float64(ev.Scheduled))
	s.requests.WithLabelValues("deferred").Add(float64(ev.Deferred))
	s.requests.WithLabelValues("rejected").Add(float64(ev.Rejected))
	s.requests.WithLabelValues("skipped").Add(float64(ev.Skipped))
	if ev.Status == "ok" {
		s.entries.Set(float64(ev.Entries))
	}
	return nil
}

// RecordMachineLoad sets the booked minutes gauge of each machine.
func (s *PromSink) RecordMachineLoad(loads []coremetrics.MachineLoad) error {
	for _, l := range loads {
		s.booked.WithLabelValues(l.Machine, l.ScanType).Set(float64(l.BookedMinutes))
	}
	return nil
}

// RecordWait observes waiting times.
func (s *PromSink) RecordWait(waits []coremetrics.WaitEvent) error {
	for _, w := range waits {
		s.wait.WithLabelValues(w.ScanType, strconv.Itoa(w.Priority)).Observe(w.Wait.Minutes())
	}
	return nil
}
