package proxddp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/euclid"
	"github.com/prox-ddp/solver/workspace"
)

// buildLQRProblem builds an N-stage horizon with constant dynamics
// A x + B u + c = x' and constant quadratic stage/terminal cost, no path
// constraints, matching the concrete end-to-end scenario.
func buildLQRProblem(n int, a, b *mat.Dense, c []float64, q, r *mat.Dense, x0 []float64) *Problem {
	nx, _ := a.Dims()
	_, nu := b.Dims()
	p := &Problem{X0: x0, Stages: make([]*StageModel, n+1)}
	for t := 0; t <= n; t++ {
		st := &StageModel{
			Manifold: euclid.NewVectorSpace(nx),
			Cost:     euclid.NewQuadraticCost(q, r, nil),
		}
		if t < n {
			st.NU = nu
			st.Dynamics = euclid.NewLinearDynamics(a, b, c)
		}
		p.Stages[t] = st
	}
	return p
}

func infNormVec(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

// TestConcreteLQRScenarioConverges runs the tol=1e-7, mu_init=1e-6,
// rho_init=0 end-to-end scenario: the solve must converge within two
// outer AL iterations and drive the terminal state close to the origin.
func TestConcreteLQRScenarioConverges(t *testing.T) {
	n := 20
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := mat.NewDense(2, 2, []float64{-0.6, 0.3, 0, 1})
	q := mat.NewDense(2, 2, []float64{2, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.01})
	x0 := []float64{1, -0.1}

	p := buildLQRProblem(n, a, b, []float64{0.1, 0}, q, r, x0)

	s := NewSolver(1e-7, 1e-6, 0, 20, Quiet, GaussNewton)
	w, err := s.Setup(p)
	require.NoError(t, err)
	defer w.Close()

	res, err := s.Run(p, w, nil, nil, nil, nil)
	require.NoError(t, err)
	require.True(t, res.Converged)
	require.LessOrEqual(t, res.NumAlIters, 2)
	require.LessOrEqual(t, infNormVec(res.Xs[n]), 1e-3)
}

// TestTerminalEqualityProducesNonzeroMultipliers covers scenario (a): a
// terminal equality x_N = 0 must end with a nonzero terminal multiplier
// and infeasibility within tolerance.
func TestTerminalEqualityProducesNonzeroMultipliers(t *testing.T) {
	n := 15
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := mat.NewDense(2, 2, []float64{-0.6, 0.3, 0, 1})
	q := mat.NewDense(2, 2, []float64{2, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.01})
	x0 := []float64{1, -0.1}

	p := buildLQRProblem(n, a, b, []float64{0, 0}, q, r, x0)
	term := p.Stages[n]
	eqA := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	eqB := mat.NewDense(2, 0, nil)
	term.Constraints = []ConstraintBlock{{
		Fn:  euclid.NewLinearFunction(eqA, eqB, []float64{0, 0}),
		Set: euclid.NewEqualitySet(2),
	}}

	s := NewSolver(1e-7, 1e-4, 0, 30, Quiet, GaussNewton)
	w, err := s.Setup(p)
	require.NoError(t, err)
	defer w.Close()

	res, err := s.Run(p, w, nil, nil, nil, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, res.PrimalInfeas, 1e-6)
	require.Greater(t, infNormVec(res.Vs[n]), 0.0)
}

// TestBoundConstrainedLQRActivatesConstraint covers scenario (b): a tight
// control bound must be active (the multiplier nonzero) on at least one
// time step once the solve converges.
func TestBoundConstrainedLQRActivatesConstraint(t *testing.T) {
	n := 10
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := mat.NewDense(2, 2, []float64{-0.6, 0.3, 0, 1})
	q := mat.NewDense(2, 2, []float64{2, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.01})
	x0 := []float64{1, -0.1}

	p := buildLQRProblem(n, a, b, []float64{0, 0}, q, r, x0)
	boundA := mat.NewDense(2, 2, nil)
	boundB := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	lower := []float64{-0.05, -1}
	upper := []float64{0.05, 1}
	for t := 0; t < n; t++ {
		p.Stages[t].Constraints = []ConstraintBlock{{
			Fn:  euclid.NewLinearFunction(boundA, boundB, []float64{0, 0}),
			Set: euclid.NewBox(lower, upper),
		}}
	}

	s := NewSolver(1e-6, 1e-3, 0, 30, Quiet, GaussNewton)
	w, err := s.Setup(p)
	require.NoError(t, err)
	defer w.Close()

	res, err := s.Run(p, w, nil, nil, nil, nil)
	require.NoError(t, err)

	active := false
	for t := 0; t < n; t++ {
		if infNormVec(res.Vs[t]) > 1e-9 {
			active = true
			break
		}
	}
	require.True(t, active)
}

// TestUnstableDynamicsAvoidsRiccatiFailure covers scenario (c): an
// unstable A (eigenvalue 1.5) over a short horizon. The test checks that
// Run returns without error and does not end in RiccatiFailure. It does
// not observe regularization: Results carries no count of inflations,
// and with R = I the condensed (u,u) block stays SPD, so Backward
// succeeds at reg = RegMin without inflating it.
func TestUnstableDynamicsAvoidsRiccatiFailure(t *testing.T) {
	n := 4
	a := mat.NewDense(2, 2, []float64{1.5, 0, 0, 1.5})
	b := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	q := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	x0 := []float64{1, 1}

	p := buildLQRProblem(n, a, b, []float64{0, 0}, q, r, x0)

	s := NewSolver(1e-7, 1e-2, 0, 10, Quiet, GaussNewton)
	s.RegMin = 1e-10
	w, err := s.Setup(p)
	require.NoError(t, err)
	defer w.Close()

	res, err := s.Run(p, w, nil, nil, nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, workspace.RiccatiFailure, res.Status)
}

// TestParallelTwoLegsMatchesSerial covers scenario (d): a parallel solve
// with two legs on a pool of two workers must agree with the serial
// solve to 1e-8 on every stage's primal state.
func TestParallelTwoLegsMatchesSerial(t *testing.T) {
	n := 10
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := mat.NewDense(2, 2, []float64{-0.6, 0.3, 0, 1})
	q := mat.NewDense(2, 2, []float64{2, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.01})
	x0 := []float64{1, -0.1}

	pSerial := buildLQRProblem(n, a, b, []float64{0, 0}, q, r, x0)
	sSerial := NewSolver(1e-9, 1e-6, 0, 1, Quiet, GaussNewton)
	sSerial.NumLegs = 1
	wSerial, err := sSerial.Setup(pSerial)
	require.NoError(t, err)
	defer wSerial.Close()
	resSerial, err := sSerial.Run(pSerial, wSerial, nil, nil, nil, nil)
	require.NoError(t, err)

	pParallel := buildLQRProblem(n, a, b, []float64{0, 0}, q, r, x0)
	sParallel := NewSolver(1e-9, 1e-6, 0, 1, Quiet, GaussNewton)
	sParallel.NumThreads = 2
	sParallel.NumLegs = 2
	wParallel, err := sParallel.Setup(pParallel)
	require.NoError(t, err)
	defer wParallel.Close()
	resParallel, err := sParallel.Run(pParallel, wParallel, nil, nil, nil, nil)
	require.NoError(t, err)

	for k := 0; k <= n; k++ {
		require.InDeltaSlice(t, resSerial.Xs[k], resParallel.Xs[k], 1e-8)
	}
}

