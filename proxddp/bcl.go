package proxddp

import (
	"github.com/prox-ddp/solver/scaler"
	"github.com/prox-ddp/solver/workspace"
)

// bclState is the outer loop's running (mu, eps, eta) triple.
type bclState struct {
	Mu  float64
	Eps float64
	Eta float64
}

// primalInfeasibility computes p_k = max over every dynamics residual
// and every constraint block's ||c - Proj_C(c + mu v)||_inf, evaluated
// at the true (nonlinear) residuals of the workspace's current iterate.
func primalInfeasibility(p *Problem, w *workspace.Workspace, mu float64) float64 {
	n := p.Horizon()
	worst := 0.0
	for t := 0; t < n; t++ {
		stage := p.Stages[t]
		data := stage.Dynamics.CreateData()
		stage.Dynamics.Evaluate(w.Xs[t], w.Us[t], w.Xs[t+1], data)
		if v := infNorm(data.Value); v > worst {
			worst = v
		}
	}
	for t := 0; t <= n; t++ {
		stage := p.Stages[t]
		if stage.NC() == 0 {
			continue
		}
		var ut []float64
		if t < n {
			ut = w.Us[t]
		}
		if v := constraintInfeasibility(stage, w.CstrScalers[t], w.Xs[t], ut, w.Vs[t], mu); v > worst {
			worst = v
		}
	}
	return worst
}

func constraintInfeasibility(stage *StageModel, sc *scaler.Scaler, x, u, v []float64, mu float64) float64 {
	weights := sc.DiagMatrix()
	worst := 0.0
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
			if d := abs(data.Value[i] - z[i]); d > worst {
				worst = d
			}
		}
		offset += nr
	}
	return worst
}

// dualInfeasibility proxies the stationarity criterion by the sup-norm
// of the control part of the Newton direction: once the inner loop's
// direction has collapsed (du -> 0 everywhere), the iterate is
// first-order stationary for the current LQ approximation.
func dualInfeasibility(w *workspace.Workspace) float64 {
	worst := 0.0
	for _, du := range w.Dus {
		if v := infNorm(du); v > worst {
			worst = v
		}
	}
	return worst
}

// updateMultipliersPrimal applies the classical BCL "plus" formula:
// dynamics multipliers shift by the true residual over mu, path
// multipliers shift by the AL-shifted residual's normal-cone projection
// over mu.
func updateMultipliersPrimal(p *Problem, w *workspace.Workspace, mu float64) {
	n := p.Horizon()
	for t := 0; t < n; t++ {
		stage := p.Stages[t]
		data := stage.Dynamics.CreateData()
		stage.Dynamics.Evaluate(w.Xs[t], w.Us[t], w.Xs[t+1], data)
		for i := range w.Lams[t] {
			w.LamsPlus[t][i] = w.Lams[t][i] + data.Value[i]/mu
		}
		copy(w.Lams[t], w.LamsPlus[t])
	}
	for t := 0; t <= n; t++ {
		stage := p.Stages[t]
		if stage.NC() == 0 {
			continue
		}
		var ut []float64
		if t < n {
			ut = w.Us[t]
		}
		updateBlockMultipliersPrimal(stage, w.CstrScalers[t], w, t, ut, mu)
	}
}

func updateBlockMultipliersPrimal(stage *StageModel, sc *scaler.Scaler, w *workspace.Workspace, t int, u []float64, mu float64) {
	weights := sc.DiagMatrix()
	offset := 0
	for _, blk := range stage.Constraints {
		data := blk.Fn.CreateData()
		blk.Fn.Evaluate(w.Xs[t], u, nil, data)
		nr := blk.Fn.NR()
		raw := make([]float64, nr)
		for i := 0; i < nr; i++ {
			raw[i] = w.Vs[t][offset+i] + data.Value[i]/mu/weights[offset+i]
		}
		proj := blk.Set.NormalConeProjection(scaleVec(raw, mu))
		for i := 0; i < nr; i++ {
			w.VsPlus[t][offset+i] = proj[i] / mu
		}
		offset += nr
	}
	copy(w.Vs[t], w.VsPlus[t])
}

// bclStep runs one outer iteration's BCL test: on acceptance it updates
// the multipliers and tightens eps/eta; on rejection it rolls the
// multipliers back to their previous value and shrinks mu toward muMin.
func bclStep(p *Problem, w *workspace.Workspace, state *bclState, params BCLParams, muMin float64) (accepted bool, pk float64) {
	pk = primalInfeasibility(p, w, state.Mu)
	if pk <= state.Eps {
		updateMultipliersPrimal(p, w, state.Mu)
		state.Eps = max(params.EpsTol, state.Eps*params.AlphaEps)
		state.Eta = max(params.EtaTol, state.Eta*params.AlphaEps)
		return true, pk
	}
	for t := range w.Lams {
		copy(w.Lams[t], w.PrevLams[t])
	}
	for t := range w.Vs {
		copy(w.Vs[t], w.PrevVs[t])
	}
	state.Mu = max(muMin, state.Mu*params.AlphaMu)
	state.Eps = max(params.EpsTol, state.Eps*params.AlphaEps)
	return false, pk
}
