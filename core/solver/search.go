package solver

import (
	"context"
	"sort"
)

const ctxCheckEvery = 64

type search struct {
	ctx       context.Context
	m         *Model
	st        *store
	obj       objective
	objVars   []Var
	nodeLimit int64

	// attached lists, per start variable, the literals enforcing constraints
	// on a modulo of that start. They are decided before any start.
	attached map[Var][]Var
	groupsOf [][]int

	// setTimes marks the intervals whose start is branched on by fixing it
	// at its earliest value or postponing it. postponed holds, per interval,
	// the value its start was postponed to, or minInt64.
	setTimes  []bool
	postponed []int64

	// amo partitions part of the objective variables into at-most-one
	// groups. loose are the other objective variables.
	amo      [][]Var
	loose    []Var
	grouped  []bool
	// delayJob marks the intervals whose start cost feeds machineDelay.
	delayJob []bool
	jobs     []job
	blocks   []span

	nodes   int64
	found   int
	stopped bool

	rootBound  int64
	usedLP     bool
	hasBest    bool
	best       int64
	bestValues []int64
}

func newSearch(ctx context.Context, m *Model, nodeLimit int64) *search {
	s := &search{
		ctx:       ctx,
		m:         m,
		st:        newStore(m),
		obj:       newObjective(m),
		nodeLimit: nodeLimit,
		attached:  make(map[Var][]Var),
		groupsOf:  make([][]int, len(m.intervals)),
		setTimes:  make([]bool, len(m.intervals)),
		postponed: make([]int64, len(m.intervals)),
		delayJob:  make([]bool, len(m.intervals)),
		best:      minInt64,
	}
	for v, c := range s.obj.coef {
		if c != 0 {
			s.objVars = append(s.objVars, Var(v))
		}
	}
	targets := make(map[Var][]Var)
	for _, md := range m.modulos {
		targets[md.target] = append(targets[md.target], md.x)
	}
	for _, c := range m.linears {
		if len(c.enforce) == 0 {
			continue
		}
		for _, t := range c.terms {
			for _, x := range targets[t.Var] {
				for _, l := range c.enforce {
					s.attach(x, l.Var)
				}
			}
		}
	}
	for g, group := range m.noOverlaps {
		for _, iv := range group {
			s.groupsOf[iv] = append(s.groupsOf[iv], g)
		}
	}
	for i := range s.postponed {
		s.postponed[i] = minInt64
	}
	s.groupObjective()
	s.classifyIntervals()
	return s
}

func (s *search) attach(start, lit Var) {
	for _, v := range s.attached[start] {
		if v == lit {
			return
		}
	}
	s.attached[start] = append(s.attached[start], lit)
}

// groupObjective assigns each boolean objective variable to the largest
// unconditional at-most-one constraint containing it. At most one variable
// of a group is true, so a group is bounded by its best coefficient rather
// than by the sum of its positive ones.
func (s *search) groupObjective() {
	m := s.m
	var sets [][]Var
	for i := range m.linears {
		if vs, ok := s.atMostOne(&m.linears[i]); ok {
			sets = append(sets, vs)
		}
	}
	sort.SliceStable(sets, func(a, b int) bool { return len(sets[a]) > len(sets[b]) })

	grouped := make([]bool, len(m.vars))
	s.grouped = grouped
	for _, vs := range sets {
		var g []Var
		for _, v := range vs {
			if !grouped[v] && s.obj.coef[v] != 0 {
				g = append(g, v)
			}
		}
		if len(g) < 2 {
			continue
		}
		for _, v := range g {
			grouped[v] = true
		}
		s.amo = append(s.amo, g)
	}
	for _, v := range s.objVars {
		if !grouped[v] {
			s.loose = append(s.loose, v)
		}
	}
}

// atMostOne reports whether c is sum(x) <= 1 over distinct boolean variables.
func (s *search) atMostOne(c *linearDef) ([]Var, bool) {
	if len(c.enforce) > 0 || !c.hasHi || c.hi != 1 || len(c.terms) < 2 {
		return nil, false
	}
	vs := make([]Var, 0, len(c.terms))
	seen := make(map[Var]bool, len(c.terms))
	for _, t := range c.terms {
		d := s.m.vars[t.Var]
		if t.Coef != 1 || seen[t.Var] || d.lo < 0 || d.hi > 1 {
			return nil, false
		}
		seen[t.Var] = true
		vs = append(vs, t.Var)
	}
	return vs, true
}

// classifyIntervals decides which intervals are branched with setTimes and
// which feed machineDelay. Both need starts that only prefer being early and
// that are tied to other starts through a single resource at most.
func (s *search) classifyIntervals() {
	m := s.m
	uses := make(map[Var]int, len(m.intervals))
	for i := range m.intervals {
		uses[m.intervals[i].start]++
	}
	linked := make(map[Var]bool)
	for _, c := range m.linears {
		n := 0
		for _, t := range c.terms {
			if uses[t.Var] > 0 {
				n++
			}
		}
		if n < 2 {
			continue
		}
		for _, t := range c.terms {
			linked[t.Var] = true
		}
	}
	single := func(i int) bool { return len(s.groupsOf[i]) == 1 }
	for i := range m.intervals {
		iv := &m.intervals[i]
		x := iv.start
		if !single(i) || uses[x] != 1 || linked[x] || s.obj.coef[x] > 0 {
			continue
		}
		ok := true
		for _, j := range m.noOverlaps[s.groupsOf[i][0]] {
			if !single(int(j)) {
				ok = false
				break
			}
		}
		s.setTimes[i] = ok
		s.delayJob[i] = s.obj.coef[x] < 0 && !s.grouped[x]
	}
}

// decision fixes v to val in the first branch and excludes val in the second.
// val is always one of the current bounds of v. For a setTimes start, iv is
// the interval and the second branch postpones it instead.
type decision struct {
	v   Var
	val int64
	iv  int
}

type step uint8

const (
	stepDecide step = iota
	stepDone
	stepDeadEnd
)

func (s *search) dfs() {
	if s.stopped {
		return
	}
	s.nodes++
	if s.nodes%ctxCheckEvery == 0 {
		select {
		case <-s.ctx.Done():
			s.stopped = true
			return
		default:
		}
	}
	if s.nodeLimit > 0 && s.nodes >= s.nodeLimit {
		s.stopped = true
		return
	}
	if s.hasBest && s.domainBound() <= s.best {
		return
	}

	d, next := s.choose()
	switch next {
	case stepDone:
		s.record()
		return
	case stepDeadEnd:
		return
	}
	st := s.st
	mark := len(st.trail)
	if d.iv >= 0 {
		s.branchStart(d, mark)
		return
	}
	if st.setLo(d.v, d.val) && st.setHi(d.v, d.val) && st.propagate() {
		s.dfs()
	}
	st.undo(mark)
	if s.done() {
		return
	}

	var ok bool
	if d.val == st.lo[d.v] {
		ok = st.setLo(d.v, d.val+1)
	} else {
		ok = st.setHi(d.v, d.val-1)
	}
	if ok && st.propagate() {
		s.dfs()
	}
	st.undo(mark)
}

// branchStart first starts the interval at its earliest allowed time not
// before d.val. The second branch postpones it past that time: it is only
// picked again once its lower bound moves or another interval on its
// resource ends later.
func (s *search) branchStart(d decision, mark int) {
	st := s.st
	if !st.setLo(d.v, d.val) || !st.propagate() {
		st.undo(mark)
		return
	}
	at := st.lo[d.v]
	if st.setHi(d.v, at) && st.propagate() {
		s.dfs()
	}
	st.undo(mark)
	if s.done() {
		return
	}

	prev := s.postponed[d.iv]
	s.postponed[d.iv] = at + 1
	if st.setLo(d.v, at+1) && st.propagate() {
		s.dfs()
	}
	s.postponed[d.iv] = prev
	st.undo(mark)
}

func (s *search) done() bool {
	return s.stopped || (s.hasBest && s.best >= s.rootBound)
}

func (s *search) record() {
	if !s.verify() {
		s.st.conflicts++
		return
	}
	v := s.value()
	if s.hasBest && v <= s.best {
		return
	}
	s.hasBest = true
	s.best = v
	s.found++
	s.bestValues = append(s.bestValues[:0], s.st.lo...)
	if s.best >= s.rootBound {
		s.stopped = true
	}
}

// choose picks the next decision.
func (s *search) choose() (decision, step) {
	st := s.st
	ivs := s.m.intervals

	// Literals tied to a start come first: once they are fixed, an earlier
	// start is never worse.
	for i := range ivs {
		if x := ivs[i].start; !st.fixed(x) {
			if d, ok := s.attachedDecision(x); ok {
				return d, stepDecide
			}
		}
	}

	// Schedule present intervals, earliest candidate start first.
	pick, waiting := -1, false
	var pickAt int64
	for i := range ivs {
		iv := &ivs[i]
		if sure, _ := st.present(iv); !sure || st.fixed(iv.start) {
			continue
		}
		at := st.lo[iv.start]
		if s.setTimes[i] {
			var ok bool
			if at, ok = s.nextStart(i); !ok {
				waiting = true
				continue
			}
		}
		if pick < 0 || at < pickAt {
			pick, pickAt = i, at
		}
	}
	if pick >= 0 {
		d := decision{v: ivs[pick].start, val: pickAt, iv: -1}
		if s.setTimes[pick] {
			d.iv = pick
		}
		return d, stepDecide
	}

	// Then decide which optional interval to add next.
	pick = -1
	var pickCoef, pickEst int64
	for i := range ivs {
		iv := &ivs[i]
		if !iv.optional || st.fixed(iv.presence.Var) {
			continue
		}
		c := s.obj.coef[iv.presence.Var]
		if iv.presence.Negated {
			c = -c
		}
		est := s.estimateStart(i)
		if pick < 0 || c > pickCoef || (c == pickCoef && est < pickEst) {
			pick, pickCoef, pickEst = i, c, est
		}
	}
	if pick >= 0 {
		p := ivs[pick].presence
		val := int64(1)
		if p.Negated {
			val = 0
		}
		return decision{v: p.Var, val: val, iv: -1}, stepDecide
	}

	// A postponed interval with no time left to wait for cannot start at
	// any time not already tried.
	if waiting {
		return decision{}, stepDeadEnd
	}

	for v := range st.lo {
		x := Var(v)
		if st.fixed(x) {
			continue
		}
		if d, ok := s.attachedDecision(x); ok {
			return d, stepDecide
		}
		if s.obj.coef[x] > 0 {
			return decision{v: x, val: st.hi[x], iv: -1}, stepDecide
		}
		return decision{v: x, val: st.lo[x], iv: -1}, stepDecide
	}
	return decision{}, stepDone
}

// nextStart returns the next start worth trying for a present setTimes
// interval. Before it is postponed that is its lower bound. Afterwards it is
// the earliest end of a fixed interval sharing its resource, unless its lower
// bound moved on its own. An interval whose presence is still open and that
// could end before that time makes the interval wait.
func (s *search) nextStart(i int) (int64, bool) {
	st := s.st
	ivs := s.m.intervals
	iv := &ivs[i]
	lo, hi := st.lo[iv.start], st.hi[iv.start]
	if lo > s.postponed[i] {
		return lo, true
	}
	group := s.m.noOverlaps[s.groupsOf[i][0]]
	at, ok := int64(0), false
	for _, j := range group {
		if int(j) == i {
			continue
		}
		o := &ivs[j]
		if sure, _ := st.present(o); !sure || !st.fixed(o.start) || o.size == 0 {
			continue
		}
		if e := st.lo[o.start] + o.size; e >= lo && e <= hi && (!ok || e < at) {
			at, ok = e, true
		}
	}
	if !ok {
		return 0, false
	}
	for _, j := range group {
		o := &ivs[j]
		if !o.optional || st.fixed(o.presence.Var) || o.size == 0 {
			continue
		}
		if st.lo[o.start]+o.size < at {
			return 0, false
		}
	}
	return at, true
}

// attachedDecision returns the first free literal attached to start, set to
// the value its objective coefficient prefers.
func (s *search) attachedDecision(start Var) (decision, bool) {
	for _, l := range s.attached[start] {
		if s.st.fixed(l) {
			continue
		}
		if s.obj.coef[l] < 0 {
			return decision{v: l, val: 0, iv: -1}, true
		}
		return decision{v: l, val: 1, iv: -1}, true
	}
	return decision{}, false
}

type span struct{ s, e int64 }

// estimateStart pushes the interval past the fixed intervals it shares a
// resource with.
func (s *search) estimateStart(i int) int64 {
	st := s.st
	ivs := s.m.intervals
	iv := &ivs[i]
	est := st.lo[iv.start]

	var busy []span
	for _, g := range s.groupsOf[i] {
		for _, j := range s.m.noOverlaps[g] {
			if int(j) == i {
				continue
			}
			o := &ivs[j]
			if sure, _ := st.present(o); !sure || !st.fixed(o.start) {
				continue
			}
			busy = append(busy, span{st.lo[o.start], st.lo[o.start] + o.size})
		}
	}
	sort.Slice(busy, func(a, b int) bool { return busy[a].s < busy[b].s })
	for _, b := range busy {
		if b.s < est+iv.size && est < b.e {
			est = b.e
		}
	}
	return est
}

// verify checks a complete assignment against every constraint.
func (s *search) verify() bool {
	st := s.st
	val := st.lo
	litTrue := func(l Literal) bool { return (val[l.Var] == 1) != l.Negated }
	for i := range s.m.linears {
		c := &s.m.linears[i]
		active := true
		for _, l := range c.enforce {
			if !litTrue(l) {
				active = false
				break
			}
		}
		if !active {
			continue
		}
		var sum int64
		for _, t := range c.terms {
			sum += t.Coef * val[t.Var]
		}
		if (c.hasLo && sum < c.lo) || (c.hasHi && sum > c.hi) {
			return false
		}
	}
	for _, md := range s.m.modulos {
		if val[md.target] != floorMod(val[md.x]+md.offset, md.mod) {
			return false
		}
	}
	ivs := s.m.intervals
	for _, group := range s.m.noOverlaps {
		for a := 0; a < len(group); a++ {
			x := &ivs[group[a]]
			if x.optional && !litTrue(x.presence) {
				continue
			}
			for b := a + 1; b < len(group); b++ {
				y := &ivs[group[b]]
				if y.optional && !litTrue(y.presence) {
					continue
				}
				xs, ys := val[x.start], val[y.start]
				if x.size > 0 && y.size > 0 && xs < ys+y.size && ys < xs+x.size {
					return false
				}
			}
		}
	}
	return true
}
