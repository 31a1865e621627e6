package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/scanplan/infra/logger"
)

func newTestSolver() *BranchAndBound {
	return NewBranchAndBound(5*time.Second, logger.NopLogger{})
}

func TestSolve_LinearOptimum(t *testing.T) {
	m := NewModel()
	x := m.NewIntVar(0, 3, "x")
	y := m.NewIntVar(0, 3, "y")
	m.AddLessOrEqual(Sum(x, y), 4)
	var obj LinearExpr
	obj.AddTerm(x, 3).AddTerm(y, 2)
	m.Maximize(obj)

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, int64(11), sol.Objective)
	assert.Equal(t, int64(3), sol.Value(x))
	assert.Equal(t, int64(1), sol.Value(y))
	assert.True(t, sol.Stats.LPBound)
}

func TestSolve_Minimize(t *testing.T) {
	m := NewModel()
	x := m.NewIntVar(0, 4, "x")
	y := m.NewIntVar(0, 4, "y")
	m.AddGreaterOrEqual(Sum(x, y), 5)
	m.Minimize(Sum(x, y))

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, int64(5), sol.Objective)
	assert.Equal(t, int64(5), sol.Value(x)+sol.Value(y))
}

func TestSolve_NoOverlapKeepsIntervalsApart(t *testing.T) {
	m := NewModel()
	s1 := m.NewIntVar(0, 100, "s1")
	s2 := m.NewIntVar(0, 100, "s2")
	a1 := m.NewBoolVar("a1")
	a2 := m.NewBoolVar("a2")
	i1 := m.NewOptionalInterval(s1, 10, a1.Lit(), "i1")
	i2 := m.NewOptionalInterval(s2, 10, a2.Lit(), "i2")
	m.AddNoOverlap(i1, i2)
	var obj LinearExpr
	obj.AddTerm(a1, 100).AddTerm(a2, 50).AddTerm(s1, -1).AddTerm(s2, -1)
	m.Maximize(obj)

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, int64(140), sol.Objective)
	assert.True(t, sol.Bool(a1))
	assert.True(t, sol.Bool(a2))
	st1, st2 := sol.Value(s1), sol.Value(s2)
	if st1 < st2+10 && st2 < st1+10 {
		t.Fatalf("intervals overlap: %d and %d", st1, st2)
	}
}

func TestSolve_DropsLowestWeightWhenFull(t *testing.T) {
	m := NewModel()
	weights := []int64{300, 200, 100}
	starts := make([]Var, 3)
	pres := make([]Var, 3)
	ivs := make([]Interval, 3)
	var obj LinearExpr
	for i, w := range weights {
		starts[i] = m.NewIntVar(0, 60, "s")
		pres[i] = m.NewBoolVar("a")
		ivs[i] = m.NewOptionalInterval(starts[i], 60, pres[i].Lit(), "i")
		obj.AddTerm(pres[i], w).AddTerm(starts[i], -1)
	}
	m.AddNoOverlap(ivs...)
	m.Maximize(obj)

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.True(t, sol.Bool(pres[0]))
	assert.True(t, sol.Bool(pres[1]))
	assert.False(t, sol.Bool(pres[2]))
	assert.Equal(t, int64(440), sol.Objective)
}

func TestSolve_FixedIntervalBlocksTime(t *testing.T) {
	m := NewModel()
	busy := m.NewFixedInterval(0, 30, "busy")
	s := m.NewIntVar(0, 200, "s")
	a := m.NewBoolVar("a")
	iv := m.NewOptionalInterval(s, 20, a.Lit(), "scan")
	m.AddNoOverlap(busy, iv)
	m.AddEquality(Sum(a), 1)
	m.Minimize(Sum(s))

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, int64(30), sol.Value(s))
}

func TestSolve_EnforcementLiteral(t *testing.T) {
	m := NewModel()
	x := m.NewIntVar(0, 10, "x")
	b := m.NewBoolVar("b")
	m.AddGreaterOrEqual(Sum(x), 5).OnlyEnforceIf(b.Lit())
	var obj LinearExpr
	obj.AddTerm(b, 10).AddTerm(x, -1)
	m.Maximize(obj)

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.True(t, sol.Bool(b))
	assert.Equal(t, int64(5), sol.Value(x))
	assert.Equal(t, int64(5), sol.Objective)
}

func TestSolve_ModuloWindow(t *testing.T) {
	tests := []struct {
		name     string
		offset   int64
		lo, hi   int64
		expected int64
	}{
		{name: "forward", offset: 100, lo: 480, hi: 1439, expected: 380},
		{name: "wraps", offset: 1000, lo: 0, hi: 479, expected: 440},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel()
			start := m.NewIntVar(0, 3000, "start")
			clock := m.NewIntVar(0, 1439, "clock")
			m.AddModuloEquality(clock, LinearExpr{Terms: []Term{{Var: start, Coef: 1}}, Constant: tt.offset}, 1440)
			m.AddLinear(Sum(clock), tt.lo, tt.hi)
			m.Minimize(Sum(start))

			sol, err := newTestSolver().Solve(context.Background(), m)
			require.NoError(t, err)
			require.Equal(t, StatusOptimal, sol.Status)
			assert.Equal(t, tt.expected, sol.Value(start))
			assert.Equal(t, (tt.expected+tt.offset)%1440, sol.Value(clock))
		})
	}
}

func TestSolve_ConditionalWindowLiteral(t *testing.T) {
	m := NewModel()
	start := m.NewIntVar(500, 2000, "start")
	clock := m.NewIntVar(0, 1439, "clock")
	peak := m.NewBoolVar("peak")
	m.AddModuloEquality(clock, Sum(start), 1440)
	m.AddGreaterOrEqual(Sum(clock), 480).OnlyEnforceIf(peak.Lit())
	m.AddLessOrEqual(Sum(clock), 479).OnlyEnforceIf(peak.Not())
	var obj LinearExpr
	obj.AddTerm(peak, -100).AddTerm(start, -1)
	m.Maximize(obj)

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.True(t, sol.Bool(peak))
	assert.Equal(t, int64(500), sol.Value(start))
	assert.Equal(t, int64(-600), sol.Objective)
}

func TestSolve_ProvesSequenceOnOneMachine(t *testing.T) {
	m := NewModel()
	on := m.NewConstant(1).Lit()
	sizes := []int64{50, 30, 45, 35, 55, 40}
	starts := make([]Var, len(sizes))
	ivs := make([]Interval, len(sizes))
	for i, p := range sizes {
		starts[i] = m.NewIntVar(0, 100000, "s")
		ivs[i] = m.NewOptionalInterval(starts[i], p, on, "i")
	}
	m.AddNoOverlap(ivs...)
	m.Minimize(Sum(starts...))

	sol, err := NewBranchAndBound(DefaultTimeLimit, logger.NopLogger{}).Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	// Shortest first: 0, 30, 65, 105, 150, 200.
	assert.Equal(t, int64(550), sol.Objective)
	assert.Equal(t, int64(0), sol.Value(starts[1]))
	assert.Equal(t, int64(200), sol.Value(starts[4]))
}

func TestSolve_WaitsForShorterRelease(t *testing.T) {
	m := NewModel()
	on := m.NewConstant(1).Lit()
	long := m.NewIntVar(0, 1000, "long")
	short := m.NewIntVar(5, 1000, "short")
	m.AddNoOverlap(
		m.NewOptionalInterval(long, 100, on, "long"),
		m.NewOptionalInterval(short, 10, on, "short"),
	)
	m.Minimize(Sum(long, short))

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, int64(5), sol.Value(short))
	assert.Equal(t, int64(15), sol.Value(long))
	assert.Equal(t, int64(20), sol.Objective)
}

func TestSolve_WindowedIntervalGoesFirst(t *testing.T) {
	// b must start in [0, 480) mod 1440. Starting a first leaves b the end
	// of its window at 470.
	m := NewModel()
	on := m.NewConstant(1).Lit()
	a := m.NewIntVar(0, 3000, "a")
	b := m.NewIntVar(0, 3000, "b")
	clock := m.NewIntVar(0, 1439, "clock")
	m.AddModuloEquality(clock, Sum(b), 1440)
	m.AddLessOrEqual(Sum(clock), 479)
	m.AddNoOverlap(
		m.NewOptionalInterval(a, 470, on, "a"),
		m.NewOptionalInterval(b, 20, on, "b"),
	)
	m.Minimize(Sum(a, b))

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	// b first at 0 then a at 20 beats a at 0 and b at 470.
	assert.Equal(t, int64(0), sol.Value(b))
	assert.Equal(t, int64(20), sol.Value(a))
}

func TestDomainBound_AtMostOneGroup(t *testing.T) {
	m := NewModel()
	a := m.NewBoolVar("a")
	b := m.NewBoolVar("b")
	c := m.NewBoolVar("c")
	m.AddLessOrEqual(Sum(a, b, c), 1)
	var obj LinearExpr
	obj.AddTerm(a, 5).AddTerm(b, 7).AddTerm(c, 3)
	m.Maximize(obj)

	s := newSearch(context.Background(), m, 0)
	require.Len(t, s.amo, 1)
	assert.Equal(t, int64(7), s.domainBound())

	mark := len(s.st.trail)
	require.True(t, s.st.setLit(a.Lit(), true))
	require.True(t, s.st.propagate())
	assert.Equal(t, int64(5), s.domainBound())
	s.st.undo(mark)

	require.True(t, s.st.setLit(b.Lit(), false))
	require.True(t, s.st.propagate())
	assert.Equal(t, int64(5), s.domainBound())
}

func TestDomainBound_MachineDelay(t *testing.T) {
	m := NewModel()
	on := m.NewConstant(1).Lit()
	x := m.NewIntVar(0, 500, "x")
	y := m.NewIntVar(0, 500, "y")
	m.AddNoOverlap(m.NewOptionalInterval(x, 30, on, "x"), m.NewOptionalInterval(y, 20, on, "y"))
	m.Minimize(Sum(x, y))

	s := newSearch(context.Background(), m, 0)
	s.st.enqueueAll()
	require.True(t, s.st.propagate())
	// One of them waits at least for the shorter one.
	assert.Equal(t, int64(-20), s.domainBound())
}

func TestSRPTDelay(t *testing.T) {
	tests := []struct {
		name   string
		jobs   []job
		blocks []span
		want   int64
	}{
		{name: "single", jobs: []job{{r: 7, p: 10}}, want: 0},
		{name: "shortest first", jobs: []job{{r: 0, p: 3}, {r: 0, p: 1}}, want: 1},
		{name: "preempts on release", jobs: []job{{r: 0, p: 4}, {r: 1, p: 1}}, want: 1},
		{name: "idle gap", jobs: []job{{r: 0, p: 2}, {r: 10, p: 2}}, want: 0},
		{name: "blocked span", jobs: []job{{r: 0, p: 3}, {r: 0, p: 1}}, blocks: []span{{s: 1, e: 2}}, want: 2},
		{name: "starts inside block", jobs: []job{{r: 5, p: 5}}, blocks: []span{{s: 0, e: 8}}, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, srptDelay(tt.jobs, tt.blocks))
		})
	}
}

func TestSolve_InfeasibleAtRoot(t *testing.T) {
	m := NewModel()
	x := m.NewIntVar(0, 3, "x")
	y := m.NewIntVar(0, 3, "y")
	m.AddGreaterOrEqual(Sum(x, y), 10)

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
	assert.False(t, sol.Status.HasSolution())
}

func TestSolve_OverlappingFixedIntervalsInfeasible(t *testing.T) {
	m := NewModel()
	a := m.NewFixedInterval(0, 10, "a")
	b := m.NewFixedInterval(5, 10, "b")
	m.AddNoOverlap(a, b)

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestSolve_NodeLimitWithoutIncumbent(t *testing.T) {
	m := NewModel()
	x := m.NewIntVar(0, 10, "x")
	m.Maximize(Sum(x))
	b := &BranchAndBound{NodeLimit: 1}

	sol, err := b.Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, sol.Status)
	assert.Equal(t, "UNKNOWN", sol.Status.String())
}

func TestSolve_InvalidModel(t *testing.T) {
	m := NewModel()
	m.NewIntVar(5, 1, "bad")
	m.AddModuloEquality(Var(0), LinearExpr{}, 0)

	sol, err := newTestSolver().Solve(context.Background(), m)
	if !errors.Is(err, ErrModelInvalid) {
		t.Fatalf("expected ErrModelInvalid, got %v", err)
	}
	assert.Equal(t, StatusModelInvalid, sol.Status)
}

func TestSolve_WithoutObjectiveReturnsFirstSolution(t *testing.T) {
	m := NewModel()
	x := m.NewIntVar(2, 8, "x")
	m.AddLessOrEqual(Sum(x), 4)

	sol, err := newTestSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, int64(2), sol.Value(x))
}

func TestArithmeticHelpers(t *testing.T) {
	assert.Equal(t, int64(-2), floorDiv(-3, 2))
	assert.Equal(t, int64(1), floorDiv(3, 2))
	assert.Equal(t, int64(-1), ceilDiv(-3, 2))
	assert.Equal(t, int64(2), ceilDiv(3, 2))
	assert.Equal(t, int64(2), ceilDiv(-3, -2))
	assert.Equal(t, int64(1439), floorMod(-1, 1440))

	assert.Equal(t, int64(480), nextInWindow(100, 480, 1439, 1440))
	assert.Equal(t, int64(1440), nextInWindow(1000, 0, 479, 1440))
	assert.Equal(t, int64(1919), prevInWindow(2000, 0, 479, 1440))
	assert.Equal(t, int64(1439), prevInWindow(1500, 480, 1439, 1440))
}
