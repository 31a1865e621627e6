package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/scanplan/core/events"
	"github.com/kilianp07/scanplan/core/logger"
	"github.com/kilianp07/scanplan/core/metrics"
	"github.com/kilianp07/scanplan/core/model"
	"github.com/kilianp07/scanplan/core/planner"
	"github.com/kilianp07/scanplan/core/policy"
	"github.com/kilianp07/scanplan/core/runlog"
	"github.com/kilianp07/scanplan/core/solver"
	"github.com/kilianp07/scanplan/internal/eventbus"
)

// DefaultLockWindow is the span after the run start during which persisted
// bookings are never moved.
const DefaultLockWindow = 48 * time.Hour

// Run outcomes as reported to metrics and the run history.
const (
	StatusOK         = "ok"
	StatusInfeasible = "infeasible"
	StatusTimeout    = "timeout"
	StatusError      = "error"
)

var (
	// ErrNoSolution is the terminal outcome of a run that found no schedule.
	// Nothing is persisted and the run must not be retried unchanged.
	ErrNoSolution = errors.New("cannot schedule")
	// ErrInfeasible reports that no schedule satisfies every constraint.
	ErrInfeasible = fmt.Errorf("%w: constraints are infeasible", ErrNoSolution)
	// ErrTimeout reports that the solve budget ran out before a proven result.
	ErrTimeout = fmt.Errorf("%w: solve budget exceeded", ErrNoSolution)
)

// Store is the persisted canonical schedule.
type Store interface {
	Load(ctx context.Context) ([]model.ScheduleEntry, error)
	Save(ctx context.Context, entries []model.ScheduleEntry) error
}

// Options tunes a Scheduler.
type Options struct {
	// LockWindow defaults to DefaultLockWindow. A negative window locks
	// nothing.
	LockWindow time.Duration
	// HorizonPadding bounds immediate requests, in minutes after the latest
	// check-in. Zero lets the planner choose.
	HorizonPadding int64
	// Maintenance defaults to policy.DefaultMaintenance when zero. Set Every
	// to a negative value to disable maintenance blocks.
	Maintenance policy.MaintenanceOptions
	// OnCollision defaults to policy.CollisionAbort.
	OnCollision policy.CollisionPolicy
	// RequireOptimal fails a run with ErrTimeout when the solve budget runs
	// out before the best schedule found is proven optimal. By default that
	// schedule is kept and a warning is logged.
	RequireOptimal bool
	// Now is the run clock. Nil means time.Now.
	Now func() time.Time
}

// Batch is the input of one run.
type Batch struct {
	Requests []model.ScanRequest
	// Rejected are the rows intake already refused; they are only reported.
	Rejected []*model.InputError
	// Source names where the batch came from, e.g. a file path.
	Source string
}

// SolveSummary describes the solver call of a run.
type SolveSummary struct {
	Status    string
	Objective int64
	Bound     int64
	Nodes     int64
	Elapsed   time.Duration
}

// Result is the outcome of a run. On failure it still carries what was
// learned before the run stopped.
type Result struct {
	RunID    string
	Status   string
	Schedule []model.ScheduleEntry
	// Added are the final entries of the requests planned by this run.
	Added    []model.ScheduleEntry
	Deferred []model.ScanRequest
	Skipped  []Skip
	Rejected []*model.InputError
	Warnings []policy.Overlap
	Locked   int
	Solve    *SolveSummary
	Elapsed  time.Duration
}

// Scheduler owns the write side of one facility's schedule.
type Scheduler struct {
	mu       sync.Mutex
	facility Facility
	opts     Options
	store    Store
	solver   solver.Solver
	metrics  metrics.MetricsSink
	history  runlog.Store
	bus      eventbus.EventBus
	log      logger.Logger
}

// New creates a Scheduler. The store, solver and logger are required; a nil
// sink or bus disables that output.
func New(facility Facility, opts Options, store Store, slv solver.Solver, sink metrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) (*Scheduler, error) {
	if store == nil || slv == nil || log == nil {
		return nil, fmt.Errorf("scheduler: nil parameter provided to New")
	}
	if facility.Location == nil {
		facility.Location = time.UTC
	}
	if opts.LockWindow == 0 {
		opts.LockWindow = DefaultLockWindow
	} else if opts.LockWindow < 0 {
		opts.LockWindow = 0
	}
	if opts.Maintenance == (policy.MaintenanceOptions{}) {
		opts.Maintenance = policy.DefaultMaintenance
	}
	if opts.OnCollision == "" {
		opts.OnCollision = policy.CollisionAbort
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Scheduler{
		facility: facility,
		opts:     opts,
		store:    store,
		solver:   slv,
		metrics:  sink,
		bus:      bus,
		log:      log,
	}, nil
}

// SetHistory configures the store recording every run.
func (s *Scheduler) SetHistory(h runlog.Store) {
	s.mu.Lock()
	s.history = h
	s.mu.Unlock()
}

// Facility returns the facility the scheduler plans for.
func (s *Scheduler) Facility() Facility { return s.facility }

// Run plans the batch against the persisted schedule and writes the result
// back. Runs are serialized. A batch without requests re-derives the
// schedule, which leaves an unchanged store unchanged.
func (s *Scheduler) Run(ctx context.Context, batch Batch) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	began := time.Now()
	now := s.opts.Now()
	res := &Result{RunID: uuid.NewString(), Rejected: batch.Rejected}
	s.log.Infof("run %s: %d requests from %q", res.RunID, len(batch.Requests), batch.Source)

	err := s.run(ctx, now, batch, res)
	res.Elapsed = time.Since(began)
	res.Status = statusOf(err)
	if err != nil {
		s.log.Errorf("run %s failed: %v", res.RunID, err)
	} else {
		s.log.Infof("run %s: %d added, %d deferred, %d skipped, %d entries in %s",
			res.RunID, len(res.Added), len(res.Deferred), len(res.Skipped), len(res.Schedule), res.Elapsed)
	}
	s.report(ctx, now, batch, res, err)
	return res, err
}

func (s *Scheduler) run(ctx context.Context, now time.Time, batch Batch, res *Result) error {
	existing, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	existing = policy.StripMaintenance(existing)
	locked, open := Partition(existing, now, s.opts.LockWindow)
	res.Locked = len(locked)

	reqs, kept, skipped := admit(batch.Requests, s.facility.Topology, locked, open)
	res.Skipped = skipped
	for _, sk := range skipped {
		s.log.Warnf("run %s: skipping %s: %s", res.RunID, sk.ScanID, sk.Reason)
	}

	var added []model.ScheduleEntry
	if len(reqs) > 0 {
		added, res.Deferred, err = s.plan(ctx, reqs, kept, res)
		if err != nil {
			return err
		}
	}

	merged := Merge(kept, added)
	final := policy.BumpPriorityZero(merged)
	final = policy.InsertMaintenance(final, s.opts.Maintenance)

	scope := policy.Scope{Fresh: scanIDs(added), Locked: scanIDs(locked)}
	warnings, err := policy.Validate(final, scope, s.opts.OnCollision)
	res.Warnings = warnings
	for _, w := range warnings {
		s.log.Warnf("run %s: %s", res.RunID, w)
	}
	if err != nil {
		return err
	}

	if err := s.store.Save(ctx, final); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	res.Schedule = final
	for _, e := range final {
		if scope.Fresh[e.ScanID] {
			res.Added = append(res.Added, e)
		}
	}
	return nil
}

// plan builds and solves the model for the admitted requests.
func (s *Scheduler) plan(ctx context.Context, reqs []model.ScanRequest, kept []model.ScheduleEntry, res *Result) ([]model.ScheduleEntry, []model.ScanRequest, error) {
	prob, err := planner.Build(reqs, kept, planner.Options{
		Topology:       s.facility.Topology,
		Deadlines:      s.facility.Deadlines,
		Location:       s.facility.Location,
		HorizonPadding: s.opts.HorizonPadding,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build model: %w", err)
	}
	s.log.Debugw("model built", map[string]any{
		"run_id":   res.RunID,
		"requests": len(reqs),
		"fixed":    len(kept),
		"horizon":  prob.Horizon,
	})

	sol, err := s.solver.Solve(ctx, prob.Model)
	if sol != nil {
		res.Solve = &SolveSummary{
			Status:    sol.Status.String(),
			Objective: sol.Objective,
			Bound:     sol.Bound,
			Nodes:     sol.Stats.Nodes,
			Elapsed:   sol.Stats.WallTime,
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("solve: %w", err)
	}
	switch sol.Status {
	case solver.StatusOptimal:
	case solver.StatusFeasible:
		if s.opts.RequireOptimal {
			return nil, nil, fmt.Errorf("%w (best objective %d, bound %d)", ErrTimeout, sol.Objective, sol.Bound)
		}
		s.log.Warnf("run %s: solve budget exhausted, keeping best schedule (objective %d, bound %d)", res.RunID, sol.Objective, sol.Bound)
	case solver.StatusInfeasible:
		return nil, nil, ErrInfeasible
	case solver.StatusUnknown:
		return nil, nil, ErrTimeout
	default:
		return nil, nil, fmt.Errorf("solve: unexpected status %s", sol.Status)
	}

	added, deferred, err := prob.Extract(sol)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}
	for _, r := range deferred {
		s.log.Infof("run %s: deferred %s (patient %s already served this run)", res.RunID, r.ScanID, r.PatientID)
	}
	return added, deferred, nil
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	default:
		return StatusError
	}
}

// report publishes the outcome of a run. Failures here are logged only.
func (s *Scheduler) report(ctx context.Context, now time.Time, batch Batch, res *Result, runErr error) {
	ev := metrics.RunEvent{
		RunID:     res.RunID,
		Facility:  s.facility.Name,
		Status:    res.Status,
		Requests:  len(batch.Requests),
		Scheduled: len(res.Added),
		Deferred:  len(res.Deferred),
		Rejected:  len(res.Rejected),
		Skipped:   len(res.Skipped),
		Entries:   len(res.Schedule),
		Warnings:  len(res.Warnings),
		Duration:  res.Elapsed,
		Time:      now,
	}
	for _, e := range res.Schedule {
		if e.IsMaintenance() {
			ev.Maintenance++
		}
	}
	if res.Solve != nil {
		ev.SolverStatus = res.Solve.Status
		ev.Objective = res.Solve.Objective
		ev.Nodes = res.Solve.Nodes
		ev.SolveTime = res.Solve.Elapsed
	}
	if err := s.metrics.RecordRun(ev); err != nil {
		s.log.Errorf("run %s: metrics: %v", res.RunID, err)
	}

	if s.history != nil {
		if err := s.history.Append(ctx, s.record(now, batch, res, runErr)); err != nil {
			s.log.Errorf("run %s: history: %v", res.RunID, err)
		}
	}

	if s.bus == nil {
		return
	}
	s.bus.Publish(events.RunEvent{
		RunID:     res.RunID,
		Facility:  s.facility.Name,
		Status:    res.Status,
		Scheduled: len(res.Added),
		Deferred:  len(res.Deferred),
		Err:       runErr,
		Elapsed:   res.Elapsed,
	})
	if runErr != nil {
		return
	}
	checkIn := make(map[string]time.Time, len(batch.Requests))
	for _, r := range batch.Requests {
		checkIn[r.ScanID] = r.CheckIn
	}
	s.bus.Publish(events.ScheduleEvent{
		RunID:    res.RunID,
		Facility: s.facility.Name,
		Schedule: res.Schedule,
		Added:    res.Added,
		CheckIn:  checkIn,
		Time:     now,
	})
}

func (s *Scheduler) record(now time.Time, batch Batch, res *Result, runErr error) runlog.Record {
	rec := runlog.Record{
		RunID:      res.RunID,
		Timestamp:  now,
		Facility:   s.facility.Name,
		Source:     batch.Source,
		Status:     res.Status,
		Requests:   len(batch.Requests),
		Entries:    len(res.Schedule),
		DurationMS: res.Elapsed.Milliseconds(),
	}
	if res.Solve != nil {
		rec.SolverStatus = res.Solve.Status
		rec.Objective = res.Solve.Objective
	}
	for _, e := range res.Added {
		rec.Scheduled = append(rec.Scheduled, e.ScanID)
	}
	for _, r := range res.Deferred {
		rec.Deferred = append(rec.Deferred, r.ScanID)
	}
	for _, sk := range res.Skipped {
		rec.Skipped = append(rec.Skipped, sk.ScanID)
	}
	for _, r := range res.Rejected {
		rec.Rejected = append(rec.Rejected, r.Error())
	}
	for _, w := range res.Warnings {
		rec.Warnings = append(rec.Warnings, w.String())
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}
