package riccati

import (
	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/lqr"
)

// Step is one time index's primal/dual solution produced by Forward: the
// state deviation dx, control deviation du, the dynamics multiplier
// lambda and the path-constraint multiplier v.
type Step struct {
	Dx     []float64
	Du     []float64
	Lambda []float64
	V      []float64
}

// NewSteps allocates a trajectory of Step buffers sized to match stages
// and datas.
func NewSteps(stages []*lqr.Knot, datas []*StageFactor) []Step {
	steps := make([]Step, len(stages))
	for t, k := range stages {
		steps[t] = Step{
			Dx:     make([]float64, k.Nx),
			Du:     make([]float64, k.Nu),
			Lambda: make([]float64, k.Nx),
			V:      make([]float64, datas[t].Nc),
		}
	}
	return steps
}

// Forward runs the forward sweep that recovers the primal step and
// multiplier-consistent duals from a completed Backward pass. dx0 is the
// initial state deviation; theta is the gluing parameter supplied by the
// parallel condensed solve (nil or empty when the problem has no
// parameterization, i.e. Nth == 0 at every knot).
func Forward(stages []*lqr.Knot, datas []*StageFactor, dx0 []float64, theta []float64, steps []Step) {
	dx := append([]float64{}, dx0...)
	for t, k := range stages {
		sf := datas[t]
		step := &steps[t]
		copy(step.Dx, dx)

		var th *mat.VecDense
		if k.Nth > 0 {
			th = mat.NewVecDense(k.Nth, theta)
		}

		if k.Nu > 0 {
			du := affine(sf.K, sf.Kth, sf.k, dx, th)
			copy(step.Du, du)
		}

		if k.Nc > 0 {
			v := affine(sf.Kv, sf.Kvth, sf.kv, dx, th)
			copy(step.V, v)
		}

		if t < len(stages)-1 {
			lambda := affine(sf.Kdyn, sf.Kdynth, sf.kdyn, dx, th)
			copy(step.Lambda, lambda)

			if !effectiveDynamics(k, sf.scr) {
				// Singular E is caught during Backward; Forward assumes a
				// successful factorization already validated it.
				panic("riccati: effective dynamics singular during forward pass")
			}
			dx = nextState(sf.scr.aeff, sf.scr.beff, sf.scr.feff, dx, step.Du, k)
		}
	}
}

// affine evaluates Kx*x + k + Kth*theta (the Kth term is skipped when
// th is nil, i.e. the knot carries no parameterization).
func affine(kx, kth *mat.Dense, k []float64, x []float64, th *mat.VecDense) []float64 {
	r, _ := kx.Dims()
	out := make([]float64, r)
	copy(out, k)
	var kxx mat.VecDense
	kxx.MulVec(kx, mat.NewVecDense(len(x), x))
	for i := 0; i < r; i++ {
		out[i] += kxx.AtVec(i)
	}
	if th != nil && kth != nil {
		var kthTh mat.VecDense
		kthTh.MulVec(kth, th)
		for i := 0; i < r; i++ {
			out[i] += kthTh.AtVec(i)
		}
	}
	return out
}

// nextState advances the state deviation through the knot's dynamics:
// dx' = Aeff dx + Beff du + feff, so the step also closes the dynamics
// gap f of the linearization.
func nextState(aeff, beff *mat.Dense, feff []float64, dx, du []float64, k *lqr.Knot) []float64 {
	nx := k.Nx
	out := make([]float64, nx)
	var axv mat.VecDense
	axv.MulVec(aeff, mat.NewVecDense(len(dx), dx))
	for i := 0; i < nx; i++ {
		out[i] = axv.AtVec(i) + feff[i]
	}
	if k.Nu > 0 {
		var buv mat.VecDense
		buv.MulVec(beff, mat.NewVecDense(len(du), du))
		for i := 0; i < nx; i++ {
			out[i] += buv.AtVec(i)
		}
	}
	return out
}
