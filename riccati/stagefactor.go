// Package riccati implements the serial proximal, augmented-Lagrangian
// Riccati backward and forward passes that factorize and solve the
// block-banded KKT system of one linear-quadratic approximation.
package riccati

import "gonum.org/v1/gonum/mat"

// ValueFunction holds the quadratic value function at one time index:
//
//	V(x) = 1/2 x'Pmat x + pvec'x + (parameter terms)
//
// Vtt, Vxt, vt describe how V depends on the gluing parameter theta when
// the knot has been parameterized (Nth > 0); they are zero-sized
// otherwise.
type ValueFunction struct {
	Pmat *mat.Dense
	Pvec []float64
	Vtt  *mat.Dense
	Vxt  *mat.Dense
	Vt   []float64
}

func newValueFunction(nx, nth int) ValueFunction {
	return ValueFunction{
		Pmat: mat.NewDense(nx, nx, nil),
		Pvec: make([]float64, nx),
		Vtt:  mat.NewDense(nth, nth, nil),
		Vxt:  mat.NewDense(nx, nth, nil),
		Vt:   make([]float64, nth),
	}
}

// StageFactor is the Riccati per-knot workspace: the value function, the
// feedback/feedforward gains for the control, and the dual feedbacks
// expressing the dynamics and path-constraint multipliers as affine
// functions of the state (and parameter, if any).
type StageFactor struct {
	Nx, Nu, Nc, Nth int

	VM ValueFunction

	// K, k: u = K x + k + Kth theta (feedback/feedforward on control).
	K   *mat.Dense
	k   []float64
	Kth *mat.Dense

	// Kdyn, kdyn: lambda = Kdyn x + kdyn + Kdynth theta (dynamics
	// multiplier dual feedback).
	Kdyn   *mat.Dense
	kdyn   []float64
	Kdynth *mat.Dense

	// Kv, kv: v = Kv x + kv + Kvth theta (path-constraint multiplier
	// dual feedback); zero-sized when Nc == 0.
	Kv   *mat.Dense
	kv   []float64
	Kvth *mat.Dense

	// chol is the scratch Cholesky factorization of the condensed (u,u)
	// Hamiltonian block, retained across calls to avoid reallocating.
	chol mat.Cholesky

	// scr holds the other named intermediate matrices/vectors the
	// backward sweep needs for this knot, preallocated once here and
	// reused on every call (see Backward for what still allocates).
	scr *scratch
}

// NewStageFactor allocates a stage factor sized to a knot of the given
// dimensions.
func NewStageFactor(nx, nu, nc, nth int) *StageFactor {
	sf := &StageFactor{Nx: nx, Nu: nu, Nc: nc, Nth: nth}
	sf.VM = newValueFunction(nx, nth)
	sf.K = mat.NewDense(nu, nx, nil)
	sf.k = make([]float64, nu)
	sf.Kdyn = mat.NewDense(nx, nx, nil)
	sf.kdyn = make([]float64, nx)
	sf.Kv = mat.NewDense(max0(nc), nx, nil)
	sf.kv = make([]float64, max0(nc))
	if nth > 0 {
		sf.Kth = mat.NewDense(nu, nth, nil)
		sf.Kdynth = mat.NewDense(nx, nth, nil)
		sf.Kvth = mat.NewDense(max0(nc), nth, nil)
	}
	sf.scr = newScratch(nx, nu, nc, nth)
	return sf
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Reset zeros all buffers so a StageFactor can be reused across outer
// iterations without reallocating.
func (sf *StageFactor) Reset() {
	sf.VM.Pmat.Zero()
	zeroVec(sf.VM.Pvec)
	if sf.Nth > 0 {
		sf.VM.Vtt.Zero()
		sf.VM.Vxt.Zero()
		zeroVec(sf.VM.Vt)
	}
	sf.K.Zero()
	zeroVec(sf.k)
	sf.Kdyn.Zero()
	zeroVec(sf.kdyn)
	if sf.Nc > 0 {
		sf.Kv.Zero()
		zeroVec(sf.kv)
	}
}

func zeroVec(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
