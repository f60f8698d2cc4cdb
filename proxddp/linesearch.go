package proxddp

import "github.com/prox-ddp/solver/workspace"

// lineSearchResult is what a line search reports back to the inner
// Newton loop: the accepted step size and the merit value it achieved.
type lineSearchResult struct {
	Alpha    float64
	Merit    float64
	Accepted bool
}

// shrinkFactor returns the geometric factor applied to alpha between
// unsuccessful Armijo trials, per LSInterpolation: a faithful
// quadratic/cubic polynomial-fit shrink needs the previous two trial
// merits, which this driver does not keep around between calls, so all
// three interpolation modes collapse to a fixed geometric factor here,
// tightest for cubic (closest to how a polynomial fit would behave near
// a minimum) and loosest for bisection.
func shrinkFactor(interp LSInterpolation) float64 {
	switch interp {
	case Quadratic:
		return 0.3
	case Cubic:
		return 0.2
	default:
		return 0.5
	}
}

// armijoLineSearch backtracks alpha from 1 until the sufficient-decrease
// test M(alpha) <= M(0) + c1*alpha*dirDeriv holds, or maxSteps trials are
// exhausted. dirDeriv must be the (negative) directional derivative of
// the merit along the search direction.
func armijoLineSearch(p *Problem, w *workspace.Workspace, mu, rho, m0, dirDeriv, c1 float64, interp LSInterpolation, maxSteps int, rtype RolloutType, maxSubsteps int) lineSearchResult {
	alpha := 1.0
	shrink := shrinkFactor(interp)
	for i := 0; i < maxSteps; i++ {
		doRollout(p, w, alpha, rtype, maxSubsteps)
		m := computeMerit(p, w, mu, rho)
		if m <= m0+c1*alpha*dirDeriv {
			return lineSearchResult{Alpha: alpha, Merit: m, Accepted: true}
		}
		alpha *= shrink
	}
	doRollout(p, w, alpha, rtype, maxSubsteps)
	return lineSearchResult{Alpha: alpha, Merit: computeMerit(p, w, mu, rho), Accepted: false}
}

// nonmonotoneLineSearch always takes the full step, unconditionally
// accepted.
func nonmonotoneLineSearch(p *Problem, w *workspace.Workspace, mu, rho float64, rtype RolloutType, maxSubsteps int) lineSearchResult {
	doRollout(p, w, 1, rtype, maxSubsteps)
	return lineSearchResult{Alpha: 1, Merit: computeMerit(p, w, mu, rho), Accepted: true}
}

// directionalDerivative approximates <grad M, d> by the linear-cost part
// of the direction's predicted decrease, sum_t (q_t . dx_t + r_t . du_t),
// using the gradients already stored in the linearized knots: an
// inexpensive proxy that is exact for the unconstrained LQR case and a
// descent-direction-consistent approximation once path constraints and
// the proximal term are folded in (their curvature dominates the
// quadratic model the Newton direction was computed from).
func directionalDerivative(w *workspace.Workspace) float64 {
	d := 0.0
	for t, k := range w.Problem.Stages {
		d += dot(k.Qvec(), w.Dxs[t])
		if k.Nu > 0 {
			d += dot(k.Rvec(), w.Dus[t])
		}
	}
	return d
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
