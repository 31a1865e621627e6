package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// lpBound solves the linear relaxation of the unconditional constraints over
// the variables still free after root propagation. It returns an upper bound
// on the maximization objective, or false when the relaxation could not be
// used.
func lpBound(st *store, obj objective, maxVars int) (bound int64, ok bool) {
	col := make(map[Var]int)
	var free []Var
	for v := range st.lo {
		if !st.fixed(Var(v)) {
			col[Var(v)] = len(free)
			free = append(free, Var(v))
		}
	}
	n := len(free)
	if n == 0 || n > maxVars {
		return 0, false
	}

	constant := obj.constant
	c := make([]float64, n)
	for v, coef := range obj.coef {
		if coef == 0 {
			continue
		}
		if j, isFree := col[Var(v)]; isFree {
			c[j] = -float64(coef)
		} else {
			constant += coef * st.lo[v]
		}
	}

	var gRows, aRows [][]float64
	var h, b []float64
	for j, v := range free {
		up := make([]float64, n)
		up[j] = 1
		gRows = append(gRows, up)
		h = append(h, float64(st.hi[v]))
		down := make([]float64, n)
		down[j] = -1
		gRows = append(gRows, down)
		h = append(h, -float64(st.lo[v]))
	}
	for i := range st.m.linears {
		lc := &st.m.linears[i]
		if len(lc.enforce) > 0 {
			continue
		}
		row := make([]float64, n)
		var fixedPart int64
		used := false
		for _, t := range lc.terms {
			if j, isFree := col[t.Var]; isFree {
				row[j] += float64(t.Coef)
				used = true
			} else {
				fixedPart += t.Coef * st.lo[t.Var]
			}
		}
		if !used {
			continue
		}
		switch {
		case lc.hasLo && lc.hasHi && lc.lo == lc.hi:
			aRows = append(aRows, row)
			b = append(b, float64(lc.lo-fixedPart))
		default:
			if lc.hasHi {
				gRows = append(gRows, row)
				h = append(h, float64(lc.hi-fixedPart))
			}
			if lc.hasLo {
				neg := make([]float64, n)
				for j := range row {
					neg[j] = -row[j]
				}
				gRows = append(gRows, neg)
				h = append(h, -float64(lc.lo-fixedPart))
			}
		}
	}

	optF, err := solveRelaxation(c, gRows, h, aRows, b)
	if err != nil {
		return 0, false
	}
	tol := 1e-6 * math.Max(1, math.Abs(optF))
	return int64(math.Floor(-optF+tol)) + constant, true
}

var errRelaxation = errors.New("lp relaxation failed")

func dense(rows [][]float64, n int) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	d := mat.NewDense(len(rows), n, nil)
	for i, r := range rows {
		d.SetRow(i, r)
	}
	return d
}

// solveRelaxation converts the general form problem and runs the simplex.
// gonum panics on some degenerate inputs; those are reported as errors.
func solveRelaxation(c []float64, gRows [][]float64, h []float64, aRows [][]float64, b []float64) (optF float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errRelaxation
		}
	}()
	n := len(c)
	G := dense(gRows, n)
	var A mat.Matrix
	if d := dense(aRows, n); d != nil {
		A = d
	} else {
		b = nil
	}
	cStd, AStd, bStd := lp.Convert(c, G, h, A, b)
	optF, _, err = lp.Simplex(cStd, AStd, bStd, 1e-7, nil)
	return optF, err
}
