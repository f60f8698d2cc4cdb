package proxddp

import (
	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/lqr"
	"github.com/prox-ddp/solver/scaler"
	"github.com/prox-ddp/solver/workspace"
)

// activeTol is the tolerance used to decide whether a constraint row's
// AL-shifted value was moved by its set's projection (active) or left
// untouched (inactive, already feasible, contributes nothing to this
// knot's Hamiltonian).
const activeTol = 1e-12

// buildLQApproximation linearizes the problem around the workspace's
// current iterate (Xs, Us, Lams, Vs) at AL strength mu, writing the
// result into w.Problem's knots. Each stage's model callbacks allocate
// their own per-call FunctionData/CostData scratch, since the modelling
// layer owns that scratch, not the workspace, so every call allocates.
func buildLQApproximation(p *Problem, w *workspace.Workspace, mu float64) {
	n := p.Horizon()
	for t := 0; t <= n; t++ {
		stage := p.Stages[t]
		knot := w.Problem.Stages[t]

		var ut []float64
		if t < n {
			ut = w.Us[t]
		}

		costData := stage.Cost.CreateData()
		stage.Cost.Evaluate(w.Xs[t], ut, costData)
		stage.Cost.ComputeGradients(w.Xs[t], ut, costData)
		stage.Cost.ComputeHessians(w.Xs[t], ut, costData)
		knot.Q.Copy(costData.Lxx)
		copy(knot.Qvec(), costData.Lx)
		if t < n {
			knot.R.Copy(costData.Luu)
			knot.S.Copy(costData.Lxu)
			copy(knot.Rvec(), costData.Lu)
		}

		if t < n {
			buildDynamics(stage, w, t, knot)
		}
		buildConstraints(stage, w.CstrScalers[t], w, t, mu, knot)
	}
}

func buildDynamics(stage *StageModel, w *workspace.Workspace, t int, knot *lqr.Knot) {
	data := stage.Dynamics.CreateData()
	stage.Dynamics.Evaluate(w.Xs[t], w.Us[t], w.Xs[t+1], data)
	stage.Dynamics.ComputeJacobians(w.Xs[t], w.Us[t], w.Xs[t+1], data)
	knot.A.Copy(data.Jx)
	knot.B.Copy(data.Ju)
	knot.E.Copy(data.Jy)
	copy(knot.F(), data.Value)
}

// buildConstraints linearizes every path-constraint block of stage
// around the current iterate, AL-shifts it by mu and the stage's
// scaler weights, and writes active rows into knot.C/D/d (inactive rows
// zeroed, per riccati.Backward's own convention).
func buildConstraints(stage *StageModel, sc *scaler.Scaler, w *workspace.Workspace, t int, mu float64, knot *lqr.Knot) {
	nc := stage.NC()
	if nc == 0 {
		return
	}
	weights := sc.DiagMatrix()

	var ut []float64
	if knot.Nu > 0 {
		ut = w.Us[t]
	}

	offset := 0
	for _, blk := range stage.Constraints {
		data := blk.Fn.CreateData()
		blk.Fn.Evaluate(w.Xs[t], ut, nil, data)
		blk.Fn.ComputeJacobians(w.Xs[t], ut, nil, data)

		nr := blk.Fn.NR()
		shifted := make([]float64, nr)
		for i := 0; i < nr; i++ {
			shifted[i] = data.Value[i] + mu*weights[offset+i]*w.Vs[t][offset+i]
		}
		z := blk.Set.Projection(shifted)

		for i := 0; i < nr; i++ {
			row := offset + i
			if abs(z[i]-shifted[i]) <= activeTol {
				setRow(knot.C, row, nil)
				if knot.Nu > 0 {
					setRow(knot.D, row, nil)
				}
				knot.DVec()[row] = 0
				continue
			}
			setRowFrom(knot.C, row, data.Jx, i)
			if knot.Nu > 0 {
				setRowFrom(knot.D, row, data.Ju, i)
			}
			knot.DVec()[row] = z[i] - mu*weights[offset+i]*w.Vs[t][offset+i]
		}
		offset += nr
	}
}

// setRow zeros row of dst.
func setRow(dst *mat.Dense, row int, _ mat.Vector) {
	_, c := dst.Dims()
	for j := 0; j < c; j++ {
		dst.Set(row, j, 0)
	}
}

// setRowFrom copies row srcRow of src into row row of dst.
func setRowFrom(dst *mat.Dense, row int, src *mat.Dense, srcRow int) {
	_, c := dst.Dims()
	for j := 0; j < c; j++ {
		dst.Set(row, j, src.At(srcRow, j))
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
