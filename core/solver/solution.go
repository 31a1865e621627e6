package solver

import (
	"context"
	"time"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusUnknown Status = iota
	StatusModelInvalid
	StatusFeasible
	StatusInfeasible
	StatusOptimal
)

func (s Status) String() string {
	switch s {
	case StatusModelInvalid:
		return "MODEL_INVALID"
	case StatusFeasible:
		return "FEASIBLE"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusOptimal:
		return "OPTIMAL"
	default:
		return "UNKNOWN"
	}
}

// HasSolution reports whether variable values are available.
func (s Status) HasSolution() bool { return s == StatusOptimal || s == StatusFeasible }

// Stats summarizes the work done by a solve.
type Stats struct {
	Nodes     int64
	Conflicts int64
	Solutions int
	WallTime  time.Duration
	LPBound   bool
}

// Solution holds the result of a solve. Values are only meaningful when
// Status.HasSolution is true.
type Solution struct {
	Status    Status
	Objective int64
	// Bound is the best proven bound on the objective, equal to Objective
	// when Status is StatusOptimal.
	Bound  int64
	Stats  Stats
	values []int64
}

// Value returns the value of v in the solution.
func (s *Solution) Value(v Var) int64 {
	if s == nil || int(v) < 0 || int(v) >= len(s.values) {
		return 0
	}
	return s.values[v]
}

// Bool returns the value of a boolean variable.
func (s *Solution) Bool(v Var) bool { return s.Value(v) == 1 }

// Lit returns the value of a literal.
func (s *Solution) Lit(l Literal) bool { return s.Bool(l.Var) != l.Negated }

// Solver finds an assignment satisfying a Model. Solve returns an error only
// for invalid models or internal failures; infeasibility and budget
// exhaustion are reported through Solution.Status.
type Solver interface {
	Solve(ctx context.Context, m *Model) (*Solution, error)
}
