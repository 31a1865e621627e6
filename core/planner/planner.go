// Package planner turns scan requests and the bookings already occupying
// machines into a constraint model, and turns solved models back into
// schedule entries.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/scanplan/core/model"
	"github.com/kilianp07/scanplan/core/solver"
)

// Objective weights. The gap between the assignment weights and the timing
// terms keeps priority ahead of start time and off-peak preference.
const (
	ImmediateWeight = 100000
	PriorityWeight  = 10000
	PeakPenalty     = 100000
)

// Peak hours are 04:00 to 19:59 wall clock. The model works on a clock
// rotated so that 20:00 is minute 0, which makes off-peak one range.
const (
	peakFrom    = 240
	peakUntil   = 1199
	clockShift  = model.MinutesPerDay - peakUntil - 1
	rotatedPeak = peakFrom + clockShift
	offPeakFrom = 4
	defaultPad  = model.MinutesPerDay
)

var (
	// ErrEmptyBatch is returned when Build is called without requests.
	ErrEmptyBatch = errors.New("no requests to plan")
	// ErrNoMachine is returned for a request whose scan type has no machine.
	ErrNoMachine = errors.New("no eligible machine")
	// ErrDuplicate is returned when two requests share a scan id.
	ErrDuplicate = errors.New("duplicate scan id")
	// ErrNoSolution is returned by Extract for solutions without values.
	ErrNoSolution = errors.New("solution has no assignment")
)

// Options carries the facility configuration used to build a model.
type Options struct {
	Topology  model.Topology
	Deadlines model.Deadlines
	// Location is the facility time zone used for peak hours. Nil means UTC.
	Location *time.Location
	// HorizonPadding is added to the latest check-in to bound immediate
	// requests. Zero means one day.
	HorizonPadding int64
}

type candidate struct {
	machine  string
	start    solver.Var
	assigned solver.Var
}

type slot struct {
	req      model.ScanRequest
	checkIn  int64
	deadline int64
	cands    []candidate
}

// Problem is a built model together with what is needed to read its solution.
type Problem struct {
	Model    *solver.Model
	Timeline model.Timeline
	Horizon  int64
	slots    []slot
}

// Build creates the model for reqs. fixed are the bookings that keep their
// place and only occupy machine time. Maintenance blocks in fixed are
// ignored, as are bookings on machines outside the topology.
func Build(reqs []model.ScanRequest, fixed []model.ScheduleEntry, opts Options) (*Problem, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	padding := opts.HorizonPadding
	if padding <= 0 {
		padding = defaultPad
	}

	sorted := append([]model.ScanRequest(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CheckIn.Equal(b.CheckIn) {
			return a.CheckIn.Before(b.CheckIn)
		}
		return a.ScanID < b.ScanID
	})

	tl := model.NewTimeline(sorted, time.Time{})
	p := &Problem{Model: solver.NewModel(), Timeline: tl}
	seen := make(map[string]bool, len(sorted))
	var latest int64
	for _, r := range sorted {
		if seen[r.ScanID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, r.ScanID)
		}
		seen[r.ScanID] = true
		if off := tl.OffsetCeil(r.CheckIn); off > latest {
			latest = off
		}
	}
	p.Horizon = latest + padding

	ref := tl.Ref.In(loc)
	refClock := int64(ref.Hour()*60 + ref.Minute())

	m := p.Model
	busy := make(map[string][]solver.Interval)
	for _, e := range fixed {
		if e.IsMaintenance() || !hasMachine(opts.Topology, e.Machine) {
			continue
		}
		start := tl.Offset(e.Start)
		end := tl.Offset(e.End)
		if tl.At(end).Before(e.End) {
			end++
		}
		if end <= 0 || end <= start {
			continue
		}
		iv := m.NewFixedInterval(start, end-start, "fixed_"+e.ScanID+"_"+e.Machine)
		busy[e.Machine] = append(busy[e.Machine], iv)
	}

	var obj solver.LinearExpr
	byPatient := make(map[string][]solver.Var)
	var patients []string
	optional := make(map[string][]solver.Interval)
	for _, r := range sorted {
		machines := opts.Topology.Eligible(r.ScanType, r.Priority)
		if len(machines) == 0 {
			return nil, fmt.Errorf("%w: scan %s of type %q", ErrNoMachine, r.ScanID, r.ScanType)
		}
		s := slot{req: r, checkIn: tl.OffsetCeil(r.CheckIn), deadline: opts.Deadlines.For(r.Priority, p.Horizon)}
		lo, hi := s.checkIn, s.checkIn+s.deadline
		assigned := make([]solver.Var, 0, len(machines))
		for _, mc := range machines {
			name := r.ScanID + "_" + mc
			st := m.NewIntVar(lo, hi, "start_"+name)
			a := m.NewBoolVar("assign_" + name)
			optional[mc] = append(optional[mc], m.NewOptionalInterval(st, int64(r.Duration), a.Lit(), "interval_"+name))
			s.cands = append(s.cands, candidate{machine: mc, start: st, assigned: a})
			assigned = append(assigned, a)

			if r.Priority == model.PriorityImmediate {
				addImmediate(m, &obj, st, a, hi, name)
				continue
			}
			obj.AddTerm(a, int64(model.PriorityLowest+1-r.Priority)*PriorityWeight).AddTerm(st, -1)
			if r.Priority >= offPeakFrom {
				addOffPeak(m, &obj, st, refClock, name)
			}
		}
		m.AddLessOrEqual(solver.Sum(assigned...), 1)
		if _, ok := byPatient[r.PatientID]; !ok {
			patients = append(patients, r.PatientID)
		}
		byPatient[r.PatientID] = append(byPatient[r.PatientID], assigned...)
		p.slots = append(p.slots, s)
	}

	// One accepted request per patient and run.
	for _, pid := range patients {
		m.AddEquality(solver.Sum(byPatient[pid]...), 1)
	}
	for _, mc := range opts.Topology.AllMachines() {
		ivs := append(optional[mc], busy[mc]...)
		m.AddNoOverlap(ivs...)
	}
	m.Maximize(obj)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func hasMachine(t model.Topology, machine string) bool {
	_, ok := t.MachineType(machine)
	return ok
}

// addImmediate makes aux equal start when assigned and 0 otherwise, so an
// immediate request is rewarded for being placed and then for being early.
// bigM is the latest allowed start, check-in plus horizon: aux has to reach
// any start the window allows, and the horizon alone is short of that for
// requests checked in after the reference.
func addImmediate(m *solver.Model, obj *solver.LinearExpr, start, assigned solver.Var, bigM int64, name string) {
	aux := m.NewIntVar(0, bigM, "aux_"+name)
	var le solver.LinearExpr
	le.AddTerm(aux, 1).AddTerm(start, -1)
	m.AddLessOrEqual(le, 0)
	var off solver.LinearExpr
	off.AddTerm(aux, 1).AddTerm(assigned, -bigM)
	m.AddLessOrEqual(off, 0)
	var on solver.LinearExpr
	on.AddTerm(aux, 1).AddTerm(start, -1).AddTerm(assigned, -bigM)
	m.AddGreaterOrEqual(on, -bigM)
	obj.AddTerm(assigned, ImmediateWeight).AddTerm(aux, -1)
}

// addOffPeak penalizes starts during peak hours. peak is pinned both ways:
// peak implies a start in [04:00, 20:00) and not peak implies outside it.
func addOffPeak(m *solver.Model, obj *solver.LinearExpr, start solver.Var, refClock int64, name string) {
	clock := m.NewIntVar(0, model.MinutesPerDay-1, "clock_"+name)
	m.AddModuloEquality(clock, solver.LinearExpr{
		Terms:    []solver.Term{{Var: start, Coef: 1}},
		Constant: refClock + clockShift,
	}, model.MinutesPerDay)
	peak := m.NewBoolVar("peak_" + name)
	m.AddGreaterOrEqual(solver.Sum(clock), rotatedPeak).OnlyEnforceIf(peak.Lit())
	m.AddLessOrEqual(solver.Sum(clock), rotatedPeak-1).OnlyEnforceIf(peak.Not())
	obj.AddTerm(peak, -PeakPenalty)
}

// Extract reads the schedule out of a solution. Requests left without a
// machine are returned as deferred, in planning order.
func (p *Problem) Extract(sol *solver.Solution) ([]model.ScheduleEntry, []model.ScanRequest, error) {
	if sol == nil || !sol.Status.HasSolution() {
		return nil, nil, ErrNoSolution
	}
	var entries []model.ScheduleEntry
	var deferred []model.ScanRequest
	for _, s := range p.slots {
		placed := false
		for _, c := range s.cands {
			if !sol.Bool(c.assigned) {
				continue
			}
			start := p.Timeline.At(sol.Value(c.start))
			entries = append(entries, model.ScheduleEntry{
				ScanID:    s.req.ScanID,
				PatientID: s.req.PatientID,
				ScanType:  s.req.ScanType,
				Machine:   c.machine,
				Start:     start,
				End:       start.Add(time.Duration(s.req.Duration) * time.Minute),
				Priority:  s.req.Priority,
				Duration:  s.req.Duration,
			})
			placed = true
			break
		}
		if !placed {
			deferred = append(deferred, s.req)
		}
	}
	model.SortByMachine(entries)
	return entries, deferred, nil
}

// Window returns the earliest and latest allowed start of a planned request.
func (p *Problem) Window(scanID string) (time.Time, time.Time, bool) {
	for _, s := range p.slots {
		if s.req.ScanID == scanID {
			return p.Timeline.At(s.checkIn), p.Timeline.At(s.checkIn + s.deadline), true
		}
	}
	return time.Time{}, time.Time{}, false
}
