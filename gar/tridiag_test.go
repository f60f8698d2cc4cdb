package gar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// spdBlock returns a random-ish n x n SPD matrix M M' + n I, seeded
// deterministically from seed so the test is reproducible without
// pulling in math/rand's global state.
func spdBlock(n int, seed float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	v := seed
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v = math.Mod(v*48271+12345, 1000) / 1000
			m.Set(i, j, v-0.5)
		}
	}
	var sq mat.Dense
	sq.Mul(m, m.T())
	for i := 0; i < n; i++ {
		sq.Set(i, i, sq.At(i, i)+float64(n))
	}
	return &sq
}

// denseBlockTridiag assembles the full (sum n_i) x (sum n_i) dense matrix
// equivalent to a BlockTridiag, for cross-checking against a direct solve.
func denseBlockTridiag(bt *BlockTridiag) *mat.Dense {
	m := len(bt.Diag)
	offsets := make([]int, m+1)
	for i := 0; i < m; i++ {
		n, _ := bt.Diag[i].Dims()
		offsets[i+1] = offsets[i] + n
	}
	total := offsets[m]
	full := mat.NewDense(total, total, nil)
	for i := 0; i < m; i++ {
		n, _ := bt.Diag[i].Dims()
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				full.Set(offsets[i]+r, offsets[i]+c, bt.Diag[i].At(r, c))
			}
		}
	}
	for i := 0; i < m-1; i++ {
		nCur, nNext := bt.Sub[i].Dims()
		for r := 0; r < nCur; r++ {
			for c := 0; c < nNext; c++ {
				v := bt.Sub[i].At(r, c)
				full.Set(offsets[i+1]+r, offsets[i]+c, v)
				full.Set(offsets[i]+c, offsets[i+1]+r, v)
			}
		}
	}
	return full
}

func TestBlockTridiagSolveMatchesDense(t *testing.T) {
	sizes := []int{3, 5, 2, 4, 6}
	m := len(sizes)

	bt := &BlockTridiag{
		Diag: make([]*mat.Dense, m),
		Sub:  make([]*mat.Dense, m-1),
	}
	rhs := make([][]float64, m)
	for i, n := range sizes {
		bt.Diag[i] = spdBlock(n, float64(100+13*i))
		rhs[i] = make([]float64, n)
		for k := range rhs[i] {
			rhs[i][k] = float64(k+1) - 0.3*float64(i)
		}
	}
	for i := 0; i < m-1; i++ {
		nNext, nCur := sizes[i+1], sizes[i]
		sub := mat.NewDense(nNext, nCur, nil)
		v := float64(7 + i)
		for r := 0; r < nNext; r++ {
			for c := 0; c < nCur; c++ {
				v = math.Mod(v*48271+7, 1000) / 1000
				sub.Set(r, c, 0.2*(v-0.5))
			}
		}
		bt.Sub[i] = sub
	}

	x, ok := bt.Solve(rhs)
	require.True(t, ok)

	full := denseBlockTridiag(bt)
	total := 0
	for _, n := range sizes {
		total += n
	}
	bvec := make([]float64, 0, total)
	xvec := make([]float64, 0, total)
	for i := range sizes {
		bvec = append(bvec, rhs[i]...)
		xvec = append(xvec, x[i]...)
	}

	var residual mat.VecDense
	residual.MulVec(full, mat.NewVecDense(total, xvec))
	for i := 0; i < total; i++ {
		require.InDelta(t, bvec[i], residual.AtVec(i), 1e-10, "row %d", i)
	}
}

func TestBlockTridiagSolveEmpty(t *testing.T) {
	bt := &BlockTridiag{}
	x, ok := bt.Solve(nil)
	require.True(t, ok)
	require.Nil(t, x)
}

func TestBlockTridiagSolveSingleBlock(t *testing.T) {
	bt := &BlockTridiag{Diag: []*mat.Dense{spdBlock(4, 42)}}
	rhs := [][]float64{{1, 2, 3, 4}}
	x, ok := bt.Solve(rhs)
	require.True(t, ok)

	var check mat.VecDense
	check.MulVec(bt.Diag[0], mat.NewVecDense(4, x[0]))
	for i := 0; i < 4; i++ {
		require.InDelta(t, rhs[0][i], check.AtVec(i), 1e-10)
	}
}

func TestBlockTridiagSolveNonSPDFails(t *testing.T) {
	bad := mat.NewDense(2, 2, []float64{1, 2, 2, 1})
	bt := &BlockTridiag{Diag: []*mat.Dense{bad}}
	_, ok := bt.Solve([][]float64{{1, 1}})
	require.False(t, ok)
}
