package solver

type trailEntry struct {
	v      Var
	lo, hi int64
}

// store holds the current domains and the propagation queue of one search.
type store struct {
	m *Model

	lo, hi []int64
	trail  []trailEntry

	// watchers per variable, indexes into props
	watch [][]int
	props []propagator

	queue   []int
	inQueue []bool

	conflicts int64
}

type propKind uint8

const (
	propLinear propKind = iota
	propModulo
	propNoOverlap
)

type propagator struct {
	kind propKind
	idx  int
}

func newStore(m *Model) *store {
	n := len(m.vars)
	s := &store{
		m:     m,
		lo:    make([]int64, n),
		hi:    make([]int64, n),
		watch: make([][]int, n),
	}
	for i, d := range m.vars {
		s.lo[i], s.hi[i] = d.lo, d.hi
	}
	add := func(p propagator, vars []Var) {
		id := len(s.props)
		s.props = append(s.props, p)
		seen := make(map[Var]bool, len(vars))
		for _, v := range vars {
			if seen[v] {
				continue
			}
			seen[v] = true
			s.watch[v] = append(s.watch[v], id)
		}
	}
	for i, c := range m.linears {
		vars := make([]Var, 0, len(c.terms)+len(c.enforce))
		for _, t := range c.terms {
			vars = append(vars, t.Var)
		}
		for _, l := range c.enforce {
			vars = append(vars, l.Var)
		}
		add(propagator{kind: propLinear, idx: i}, vars)
	}
	for i, c := range m.modulos {
		add(propagator{kind: propModulo, idx: i}, []Var{c.target, c.x})
	}
	for i, g := range m.noOverlaps {
		vars := make([]Var, 0, 2*len(g))
		for _, iv := range g {
			d := m.intervals[iv]
			vars = append(vars, d.start)
			if d.optional {
				vars = append(vars, d.presence.Var)
			}
		}
		add(propagator{kind: propNoOverlap, idx: i}, vars)
	}
	s.inQueue = make([]bool, len(s.props))
	return s
}

func (s *store) fixed(v Var) bool { return s.lo[v] == s.hi[v] }

// litState returns whether the literal is fixed and, if so, its value.
func (s *store) litState(l Literal) (fixed, val bool) {
	if !s.fixed(l.Var) {
		return false, false
	}
	return true, (s.lo[l.Var] == 1) != l.Negated
}

func (s *store) setLit(l Literal, val bool) bool {
	b := int64(0)
	if val != l.Negated {
		b = 1
	}
	return s.setLo(l.Var, b) && s.setHi(l.Var, b)
}

func (s *store) enqueueWatchers(v Var) {
	for _, id := range s.watch[v] {
		if !s.inQueue[id] {
			s.inQueue[id] = true
			s.queue = append(s.queue, id)
		}
	}
}

func (s *store) enqueueAll() {
	for id := range s.props {
		if !s.inQueue[id] {
			s.inQueue[id] = true
			s.queue = append(s.queue, id)
		}
	}
}

func (s *store) clearQueue() {
	for _, id := range s.queue {
		s.inQueue[id] = false
	}
	s.queue = s.queue[:0]
}

func (s *store) setLo(v Var, x int64) bool {
	if x <= s.lo[v] {
		return true
	}
	if x > s.hi[v] {
		s.conflicts++
		return false
	}
	s.trail = append(s.trail, trailEntry{v: v, lo: s.lo[v], hi: s.hi[v]})
	s.lo[v] = x
	s.enqueueWatchers(v)
	return true
}

func (s *store) setHi(v Var, x int64) bool {
	if x >= s.hi[v] {
		return true
	}
	if x < s.lo[v] {
		s.conflicts++
		return false
	}
	s.trail = append(s.trail, trailEntry{v: v, lo: s.lo[v], hi: s.hi[v]})
	s.hi[v] = x
	s.enqueueWatchers(v)
	return true
}

// undo restores domains to the given trail length and drops pending work.
func (s *store) undo(mark int) {
	for i := len(s.trail) - 1; i >= mark; i-- {
		e := s.trail[i]
		s.lo[e.v], s.hi[e.v] = e.lo, e.hi
	}
	s.trail = s.trail[:mark]
	s.clearQueue()
}

// propagate runs queued propagators to a fixpoint. It returns false on conflict.
func (s *store) propagate() bool {
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		s.inQueue[id] = false
		p := s.props[id]
		var ok bool
		switch p.kind {
		case propLinear:
			ok = s.propagateLinear(&s.m.linears[p.idx])
		case propModulo:
			ok = s.propagateModulo(&s.m.modulos[p.idx])
		case propNoOverlap:
			ok = s.propagateNoOverlap(s.m.noOverlaps[p.idx])
		}
		if !ok {
			s.clearQueue()
			return false
		}
	}
	return true
}

func (s *store) activity(terms []Term) (minAct, maxAct int64) {
	for _, t := range terms {
		if t.Coef > 0 {
			minAct += t.Coef * s.lo[t.Var]
			maxAct += t.Coef * s.hi[t.Var]
		} else {
			minAct += t.Coef * s.hi[t.Var]
			maxAct += t.Coef * s.lo[t.Var]
		}
	}
	return minAct, maxAct
}

func (s *store) propagateLinear(c *linearDef) bool {
	unfixed := -1
	open := 0
	for i, l := range c.enforce {
		fixed, val := s.litState(l)
		if fixed && !val {
			return true
		}
		if !fixed {
			unfixed = i
			open++
		}
	}
	minAct, maxAct := s.activity(c.terms)
	violated := (c.hasHi && minAct > c.hi) || (c.hasLo && maxAct < c.lo)
	switch open {
	case 0:
	case 1:
		if violated {
			return s.setLit(c.enforce[unfixed], false)
		}
		return true
	default:
		return true
	}
	if violated {
		s.conflicts++
		return false
	}
	for _, t := range c.terms {
		a, x := t.Coef, t.Var
		var minC, maxC int64
		if a > 0 {
			minC, maxC = a*s.lo[x], a*s.hi[x]
		} else {
			minC, maxC = a*s.hi[x], a*s.lo[x]
		}
		if c.hasHi {
			slack := c.hi - (minAct - minC)
			if a > 0 {
				if !s.setHi(x, floorDiv(slack, a)) {
					return false
				}
			} else if !s.setLo(x, ceilDiv(slack, a)) {
				return false
			}
		}
		if c.hasLo {
			need := c.lo - (maxAct - maxC)
			if a > 0 {
				if !s.setLo(x, ceilDiv(need, a)) {
					return false
				}
			} else if !s.setHi(x, floorDiv(need, a)) {
				return false
			}
		}
	}
	return true
}

func (s *store) propagateModulo(c *moduloDef) bool {
	if !s.setLo(c.target, 0) || !s.setHi(c.target, c.mod-1) {
		return false
	}
	if s.fixed(c.x) {
		r := floorMod(s.lo[c.x]+c.offset, c.mod)
		return s.setLo(c.target, r) && s.setHi(c.target, r)
	}
	tlo, thi := s.lo[c.target], s.hi[c.target]
	lo := nextInWindow(s.lo[c.x]+c.offset, tlo, thi, c.mod) - c.offset
	if !s.setLo(c.x, lo) {
		return false
	}
	hi := prevInWindow(s.hi[c.x]+c.offset, tlo, thi, c.mod) - c.offset
	if !s.setHi(c.x, hi) {
		return false
	}
	if s.hi[c.x]-s.lo[c.x] < c.mod {
		rlo := floorMod(s.lo[c.x]+c.offset, c.mod)
		rhi := floorMod(s.hi[c.x]+c.offset, c.mod)
		if rlo <= rhi {
			return s.setLo(c.target, rlo) && s.setHi(c.target, rhi)
		}
	}
	return true
}

func (s *store) present(iv *intervalDef) (sure, absent bool) {
	if !iv.optional {
		return true, false
	}
	fixed, val := s.litState(iv.presence)
	return fixed && val, fixed && !val
}

// propagateNoOverlap applies pairwise timetabling against every present
// interval whose start is fixed.
func (s *store) propagateNoOverlap(group []Interval) bool {
	ivs := s.m.intervals
	for _, i := range group {
		a := &ivs[i]
		if sure, _ := s.present(a); !sure || !s.fixed(a.start) || a.size == 0 {
			continue
		}
		sa := s.lo[a.start]
		ea := sa + a.size
		for _, j := range group {
			if j == i {
				continue
			}
			b := &ivs[j]
			sure, absent := s.present(b)
			if absent || b.size == 0 {
				continue
			}
			canBefore := s.lo[b.start]+b.size <= sa
			canAfter := s.hi[b.start] >= ea
			switch {
			case !canBefore && !canAfter:
				if sure {
					s.conflicts++
					return false
				}
				if !s.setLit(b.presence, false) {
					return false
				}
			case !sure:
			case !canBefore:
				if !s.setLo(b.start, ea) {
					return false
				}
			case !canAfter:
				if !s.setHi(b.start, sa-b.size) {
					return false
				}
			}
		}
	}
	return true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q
}

func floorMod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// nextInWindow returns the smallest v' >= v with v' mod m in [lo, hi].
func nextInWindow(v, lo, hi, m int64) int64 {
	r := floorMod(v, m)
	switch {
	case r >= lo && r <= hi:
		return v
	case r < lo:
		return v + (lo - r)
	default:
		return v + (m - r) + lo
	}
}

// prevInWindow returns the largest v' <= v with v' mod m in [lo, hi].
func prevInWindow(v, lo, hi, m int64) int64 {
	r := floorMod(v, m)
	switch {
	case r >= lo && r <= hi:
		return v
	case r > hi:
		return v - (r - hi)
	default:
		return v - r - m + hi
	}
}
