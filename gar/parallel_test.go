package gar

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/lqr"
	"github.com/prox-ddp/solver/riccati"
)

func buildStages(n int, a, b, q, r *mat.Dense) []*lqr.Knot {
	nx, _ := a.Dims()
	_, nu := b.Dims()
	stages := make([]*lqr.Knot, n+1)
	for t := 0; t < n; t++ {
		k := lqr.NewKnot(nx, nu, 0)
		k.Q.Copy(q)
		k.R.Copy(r)
		k.A.Copy(a)
		k.B.Copy(b)
		for i := 0; i < nx; i++ {
			k.E.Set(i, i, -1)
		}
		stages[t] = k
	}
	term := lqr.NewKnot(nx, 0, 0)
	term.Q.Copy(q)
	stages[n] = term
	return stages
}

func newDatas(stages []*lqr.Knot) []*riccati.StageFactor {
	datas := make([]*riccati.StageFactor, len(stages))
	for i, k := range stages {
		datas[i] = riccati.NewStageFactor(k.Nx, k.Nu, k.Nc, k.Nth)
	}
	return datas
}

func TestNewParallelSolverCoversHorizon(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := mat.NewDense(2, 2, []float64{-0.6, 0.3, 0, 1})
	q := mat.NewDense(2, 2, []float64{2, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.01})

	for _, numLegs := range []int{2, 3, 4} {
		stages := buildStages(10, a, b, q, r)
		ps, err := NewParallelSolver(pool, stages, numLegs)
		require.NoError(t, err)

		covered := 0
		for i, l := range ps.legs {
			require.Equal(t, ps.splitIdx[i], l.start)
			require.Equal(t, ps.splitIdx[i+1], l.end)
			covered += l.end - l.start
			if i < len(ps.legs)-1 {
				require.False(t, l.isLast)
				last := stages[l.end-1]
				require.Equal(t, last.Nx, last.Nth)
				denseEqualT(t, last.Gx, last.A)
				denseEqualT(t, last.Gu, last.B)
			} else {
				require.True(t, l.isLast)
			}
		}
		require.Equal(t, 11, covered)
	}
}

func denseEqualT(t *testing.T, a, b *mat.Dense) {
	t.Helper()
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	require.Equal(t, ra, rb)
	require.Equal(t, ca, cb)
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			require.InDelta(t, a.At(i, j), b.At(i, j), 1e-12)
		}
	}
}

// TestParallelSolverSingleLegMatchesSerial checks that, with numLegs == 1,
// the parallel solver's backward and forward passes are byte-for-byte the
// same computation as calling riccati.Backward/riccati.Forward directly:
// a single leg spans the whole horizon, is marked isLast, and is never
// parameterized, so ParallelSolver.Backward/Forward reduce to running the
// serial sweep on the pool.
func TestParallelSolverSingleLegMatchesSerial(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()

	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := mat.NewDense(2, 2, []float64{-0.6, 0.3, 0, 1})
	q := mat.NewDense(2, 2, []float64{2, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.01})
	dx0 := []float64{1, -0.1}

	stagesSerial := buildStages(10, a, b, q, r)
	datasSerial := newDatas(stagesSerial)
	require.True(t, riccati.Backward(stagesSerial, 0, 1, 0, datasSerial))
	stepsSerial := riccati.NewSteps(stagesSerial, datasSerial)
	riccati.Forward(stagesSerial, datasSerial, dx0, nil, stepsSerial)

	stagesPar := buildStages(10, a, b, q, r)
	ps, err := NewParallelSolver(pool, stagesPar, 1)
	require.NoError(t, err)
	require.True(t, ps.Backward(0, 1, 0))
	stepsPar, ok := ps.Forward(dx0)
	require.True(t, ok)

	require.Equal(t, len(stepsSerial), len(stepsPar))
	for i := range stepsSerial {
		require.InDeltaSlice(t, stepsSerial[i].Dx, stepsPar[i].Dx, 1e-9)
		require.InDeltaSlice(t, stepsSerial[i].Du, stepsPar[i].Du, 1e-9)
	}
}

func TestParallelSolverRejectsTooFewLegs(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()

	stages := buildStages(4, mat.NewDense(1, 1, []float64{1}), mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}), mat.NewDense(1, 1, []float64{1}))
	_, err := NewParallelSolver(pool, stages, 0)
	require.Error(t, err)
}
