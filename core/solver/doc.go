// Package solver defines the constraint model used to express scheduling
// problems and a branch and bound engine able to solve it.
//
// The Model API covers bounded integer and boolean variables, optional and
// fixed intervals, per-resource no-overlap, linear constraints with
// enforcement literals, modulo equalities and a linear objective. Any engine
// implementing Solver can be plugged in place of BranchAndBound.
package solver
