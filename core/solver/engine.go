package solver

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/scanplan/core/logger"
)

// Default limits used by NewBranchAndBound.
const (
	DefaultTimeLimit = 60 * time.Second
	DefaultMaxLPVars = 120
)

// BranchAndBound is a depth first branch and bound solver. Domains are
// narrowed by propagation after every decision and subtrees whose objective
// bound cannot beat the incumbent are pruned. When UseLPBound is set the root
// node is additionally bounded by the linear relaxation of the unconditional
// constraints, which lets small problems be proven optimal early.
type BranchAndBound struct {
	// TimeLimit bounds the wall time of a solve. Zero means no limit
	// other than the context.
	TimeLimit time.Duration
	// NodeLimit stops the search after that many nodes. Zero means no limit.
	NodeLimit int64
	// UseLPBound enables the root LP relaxation.
	UseLPBound bool
	// MaxLPVars skips the relaxation for larger problems.
	MaxLPVars int
	Log       logger.Logger
}

// NewBranchAndBound returns a solver with the LP bound enabled.
func NewBranchAndBound(timeLimit time.Duration, log logger.Logger) *BranchAndBound {
	return &BranchAndBound{
		TimeLimit:  timeLimit,
		UseLPBound: true,
		MaxLPVars:  DefaultMaxLPVars,
		Log:        log,
	}
}

// Solve implements Solver.
func (b *BranchAndBound) Solve(ctx context.Context, m *Model) (*Solution, error) {
	if m == nil {
		return nil, errors.New("solver: nil model")
	}
	if err := m.Validate(); err != nil {
		return &Solution{Status: StatusModelInvalid}, err
	}
	if b.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.TimeLimit)
		defer cancel()
	}
	began := time.Now()

	s := newSearch(ctx, m, b.NodeLimit)
	st := s.st
	st.enqueueAll()
	if !st.propagate() {
		sol := &Solution{Status: StatusInfeasible, Stats: Stats{Conflicts: st.conflicts, WallTime: time.Since(began)}}
		b.debugf("solver: infeasible at root")
		return sol, nil
	}

	s.rootBound = s.domainBound()
	if b.UseLPBound {
		limit := b.MaxLPVars
		if limit <= 0 {
			limit = DefaultMaxLPVars
		}
		if lb, ok := lpBound(st, s.obj, limit); ok {
			s.usedLP = true
			if lb < s.rootBound {
				s.rootBound = lb
			}
		}
	}

	s.dfs()

	sol := &Solution{Stats: Stats{
		Nodes:     s.nodes,
		Conflicts: st.conflicts,
		Solutions: s.found,
		WallTime:  time.Since(began),
		LPBound:   s.usedLP,
	}}
	switch {
	case s.hasBest && (!s.stopped || s.best >= s.rootBound):
		sol.Status = StatusOptimal
	case s.hasBest:
		sol.Status = StatusFeasible
	case s.stopped:
		sol.Status = StatusUnknown
	default:
		sol.Status = StatusInfeasible
	}
	if s.hasBest {
		sol.values = s.bestValues
		sol.Objective = s.userObjective(s.best)
		if sol.Status == StatusOptimal {
			sol.Bound = sol.Objective
		} else {
			sol.Bound = s.userObjective(s.rootBound)
		}
	}
	b.debugf("solver: status=%s objective=%d nodes=%d conflicts=%d solutions=%d elapsed=%s",
		sol.Status, sol.Objective, sol.Stats.Nodes, sol.Stats.Conflicts, sol.Stats.Solutions, sol.Stats.WallTime)
	return sol, nil
}

func (b *BranchAndBound) debugf(format string, args ...any) {
	if b.Log != nil {
		b.Log.Debugf(format, args...)
	}
}

// objective is the objective in maximization form.
type objective struct {
	coef     []int64
	constant int64
	negated  bool
}

func newObjective(m *Model) objective {
	o := objective{coef: make([]int64, len(m.vars))}
	if !m.hasObj {
		return o
	}
	sign := int64(1)
	if !m.maximize {
		sign = -1
		o.negated = true
	}
	for _, t := range m.objective.Terms {
		o.coef[t.Var] += sign * t.Coef
	}
	o.constant = sign * m.objective.Constant
	return o
}

func (s *search) userObjective(v int64) int64 {
	if s.obj.negated {
		return -v
	}
	return v
}

// domainBound is the best objective reachable if every variable could take
// its most favorable bound independently, tightened by the at-most-one
// groups and by machineDelay.
func (s *search) domainBound() int64 {
	st := s.st
	b := s.obj.constant
	for _, v := range s.loose {
		c := s.obj.coef[v]
		if c > 0 {
			b += c * st.hi[v]
		} else {
			b += c * st.lo[v]
		}
	}
	for _, g := range s.amo {
		b += s.groupBound(g)
	}
	return b - s.machineDelay()
}

func (s *search) groupBound(g []Var) int64 {
	st := s.st
	var best int64
	for _, v := range g {
		c := s.obj.coef[v]
		if st.lo[v] == 1 {
			return c
		}
		if st.hi[v] == 1 && c > best {
			best = c
		}
	}
	return best
}

// machineDelay bounds how far past their lower bounds the unfixed present
// intervals of each resource must start, weighted by the cheapest start
// cost among them. Allowing preemption makes the resource a single machine
// problem that SRPT solves exactly.
func (s *search) machineDelay() int64 {
	st := s.st
	ivs := s.m.intervals
	var total int64
	for _, group := range s.m.noOverlaps {
		s.jobs, s.blocks = s.jobs[:0], s.blocks[:0]
		var cmin int64
		for _, i := range group {
			iv := &ivs[i]
			if sure, _ := st.present(iv); !sure || iv.size == 0 {
				continue
			}
			if st.fixed(iv.start) {
				s.blocks = append(s.blocks, span{st.lo[iv.start], st.lo[iv.start] + iv.size})
				continue
			}
			if !s.delayJob[i] {
				continue
			}
			s.jobs = append(s.jobs, job{r: st.lo[iv.start], p: iv.size})
			if c := -s.obj.coef[iv.start]; cmin == 0 || c < cmin {
				cmin = c
			}
		}
		if len(s.jobs) == 0 {
			continue
		}
		total += cmin * srptDelay(s.jobs, s.blocks)
	}
	return total
}

type job struct{ r, p int64 }

// srptDelay schedules jobs preemptively around the blocked spans, always
// running the job with the shortest remaining time. It returns the sum of
// completion times minus the sum of r+p, which no non-preemptive schedule
// can beat. jobs and blocks are reordered.
func srptDelay(jobs []job, blocks []span) int64 {
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].r < jobs[b].r })
	sort.Slice(blocks, func(a, b int) bool { return blocks[a].s < blocks[b].s })

	rem := make([]int64, len(jobs))
	ready := make([]int, 0, len(jobs))
	var delay int64
	t := jobs[0].r
	next, bi, left := 0, 0, len(jobs)
	for left > 0 {
		for next < len(jobs) && jobs[next].r <= t {
			rem[next] = jobs[next].p
			ready = append(ready, next)
			next++
		}
		for bi < len(blocks) && blocks[bi].e <= t {
			bi++
		}
		if bi < len(blocks) && blocks[bi].s <= t {
			t = blocks[bi].e
			continue
		}
		if len(ready) == 0 {
			t = jobs[next].r
			continue
		}
		k := 0
		for x := range ready {
			if rem[ready[x]] < rem[ready[k]] {
				k = x
			}
		}
		j := ready[k]
		until := t + rem[j]
		if next < len(jobs) && jobs[next].r < until {
			until = jobs[next].r
		}
		if bi < len(blocks) && blocks[bi].s < until {
			until = blocks[bi].s
		}
		rem[j] -= until - t
		t = until
		if rem[j] == 0 {
			delay += t - jobs[j].r - jobs[j].p
			ready = append(ready[:k], ready[k+1:]...)
			left--
		}
	}
	return delay
}

func (s *search) value() int64 {
	v := s.obj.constant
	for _, x := range s.objVars {
		v += s.obj.coef[x] * s.st.lo[x]
	}
	return v
}

var _ Solver = (*BranchAndBound)(nil)

var minInt64 = int64(math.MinInt64)
