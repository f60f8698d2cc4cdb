package proxddp

import (
	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/scaler"
	"github.com/prox-ddp/solver/workspace"
)

// solveJy solves Jy * correction = -residual for the tangent-space
// correction that would zero a stage's dynamics residual to first
// order, used by rolloutNonlinear's implicit substeps.
func solveJy(jy *mat.Dense, residual []float64) ([]float64, bool) {
	n := len(residual)
	neg := mat.NewVecDense(n, nil)
	neg.ScaleVec(-1, mat.NewVecDense(n, residual))
	sol := mat.NewVecDense(n, nil)
	if err := sol.SolveVec(jy, neg); err != nil {
		return nil, false
	}
	return sol.RawVector().Data, true
}

// rollout fills w.XsTrial/w.UsTrial from the current iterate stepped by
// alpha along the Riccati search direction. Rollout is always the
// linear variant (feedback applied to the linearization) here; the
// nonlinear variant additionally re-integrates true dynamics and is
// handled by rolloutNonlinear.
func rollout(p *Problem, w *workspace.Workspace, alpha float64) {
	n := p.Horizon()
	for t := 0; t <= n; t++ {
		dx := scaleVec(w.Dxs[t], alpha)
		w.XsTrial[t] = p.Stages[t].Manifold.Integrate(w.Xs[t], dx)
		if t < n {
			for i := range w.UsTrial[t] {
				w.UsTrial[t][i] = w.Us[t][i] + alpha*w.Dus[t][i]
			}
		}
	}
}

// doRollout dispatches to the linear or nonlinear rollout per rtype,
// the single entry point both the line search and innerLoop's
// pre-merit trial use so that RolloutType is honoured everywhere a
// trial iterate is produced.
func doRollout(p *Problem, w *workspace.Workspace, alpha float64, rtype RolloutType, maxSubsteps int) {
	if rtype == Nonlinear {
		rolloutNonlinear(p, w, alpha, maxSubsteps)
		return
	}
	rollout(p, w, alpha)
}

// rolloutNonlinear re-integrates the true (nonlinear) dynamics along the
// feedback policy implied by the direction, up to maxSubsteps Newton
// corrections per stage to keep the rolled-out state near the
// linearization point; it falls back to the linear rollout's trial
// control and only replaces the trial state.
func rolloutNonlinear(p *Problem, w *workspace.Workspace, alpha float64, maxSubsteps int) {
	rollout(p, w, alpha)
	n := p.Horizon()
	dx := scaleVec(w.Dxs[0], alpha)
	x := p.Stages[0].Manifold.Integrate(w.Xs[0], dx)
	w.XsTrial[0] = x
	for t := 0; t < n; t++ {
		stage := p.Stages[t]
		data := stage.Dynamics.CreateData()
		u := w.UsTrial[t]
		yLinear := w.XsTrial[t+1]
		y := yLinear

		stage.Dynamics.Evaluate(x, u, y, data)
		initialResidual := infNorm(data.Value)
		diverged := false
		for sub := 0; sub < maxSubsteps && initialResidual >= 1e-10; sub++ {
			stage.Dynamics.Evaluate(x, u, y, data)
			if infNorm(data.Value) < 1e-10 {
				break
			}
			stage.Dynamics.ComputeJacobians(x, u, y, data)
			correction, ok := solveJy(data.Jy, data.Value)
			if !ok {
				diverged = true
				break
			}
			y = p.Stages[t+1].Manifold.Integrate(y, correction)
		}
		stage.Dynamics.Evaluate(x, u, y, data)
		if diverged || infNorm(data.Value) > initialResidual {
			// Correction made things worse or failed outright: fall back
			// to the linear rollout's trial state for this stage, per the
			// nonlinear-rollout divergence handling.
			y = yLinear
		}
		w.XsTrial[t+1] = y
		x = y
	}
}

// computeMerit evaluates M(alpha) at the workspace's current trial
// iterate (XsTrial/UsTrial), combining the stage costs, the AL penalty
// envelope on every constraint block, and the proximal term anchoring
// the step to the previous outer iteration's accepted primal.
func computeMerit(p *Problem, w *workspace.Workspace, mu, rho float64) float64 {
	n := p.Horizon()
	m := 0.0
	for t := 0; t <= n; t++ {
		stage := p.Stages[t]

		var ut []float64
		if t < n {
			ut = w.UsTrial[t]
		}
		costData := stage.Cost.CreateData()
		stage.Cost.Evaluate(w.XsTrial[t], ut, costData)
		m += costData.Value

		m += constraintPenalty(stage, w.CstrScalers[t], w.XsTrial[t], ut, w.Vs[t], mu)

		dx := stage.Manifold.Difference(w.PrevXs[t], w.XsTrial[t])
		m += 0.5 * rho * sumSquares(dx)
	}
	return m
}

func constraintPenalty(stage *StageModel, sc *scaler.Scaler, x, u, v []float64, mu float64) float64 {
	if stage.NC() == 0 || mu == 0 {
		return 0
	}
	weights := sc.DiagMatrix()
	total := 0.0
	offset := 0
	for _, blk := range stage.Constraints {
		data := blk.Fn.CreateData()
		blk.Fn.Evaluate(x, u, nil, data)
		nr := blk.Fn.NR()
		shifted := make([]float64, nr)
		for i := 0; i < nr; i++ {
			shifted[i] = data.Value[i] + mu*weights[offset+i]*v[offset+i]
		}
		z := blk.Set.Projection(shifted)
		for i := 0; i < nr; i++ {
			diff := z[i]/mu - v[offset+i]
			total += 0.5 * mu * diff * diff
		}
		offset += nr
	}
	return total
}

func scaleVec(v []float64, alpha float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = alpha * x
	}
	return out
}

func sumSquares(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return s
}

func infNorm(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := abs(x); a > m {
			m = a
		}
	}
	return m
}
