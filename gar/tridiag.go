// Package gar implements the structured Riccati linear solver: a block
// Thomas-style symmetric LDLt sweep over a symmetric positive-definite
// block-tridiagonal system (every pivot is factored by Cholesky, so
// indefinite saddle-point systems are rejected), and a fork-join
// parallel-condensing variant that splits a horizon into independent
// legs solved by a fixed worker pool.
package gar

import "gonum.org/v1/gonum/mat"

// BlockTridiag is a symmetric block-tridiagonal system: m diagonal
// blocks Diag[i] (n_i x n_i, symmetric) and m-1 subdiagonal blocks
// Sub[i] (n_(i+1) x n_i) such that the superdiagonal block is Sub[i]'.
type BlockTridiag struct {
	Diag []*mat.Dense
	Sub  []*mat.Dense
}

// Solve runs the block LDLt forward/backward sweep against one
// right-hand side per diagonal block, returning false if any diagonal
// block fails to factor as SPD during elimination (a non-invertible
// condensed system).
func (bt *BlockTridiag) Solve(rhs [][]float64) ([][]float64, bool) {
	m := len(bt.Diag)
	if m == 0 {
		return nil, true
	}

	dMod := make([]*mat.Dense, m)
	rMod := make([][]float64, m)
	chols := make([]*mat.Cholesky, m)

	dMod[0] = bt.Diag[0]
	rMod[0] = rhs[0]

	for i := 1; i < m; i++ {
		chol, ok := factorSPD(dMod[i-1])
		if !ok {
			return nil, false
		}
		chols[i-1] = chol

		nPrev, _ := dMod[i-1].Dims()
		nCur, _ := bt.Diag[i].Dims()

		subT := mat.NewDense(nPrev, nCur, nil)
		subT.CloneFrom(bt.Sub[i-1].T())
		sol := mat.NewDense(nPrev, nCur, nil)
		if err := chol.SolveTo(sol, subT); err != nil {
			return nil, false
		}

		var correction mat.Dense
		correction.Mul(bt.Sub[i-1], sol)
		dNew := mat.NewDense(nCur, nCur, nil)
		dNew.Sub(bt.Diag[i], &correction)
		dMod[i] = dNew

		rVec := mat.NewVecDense(nPrev, rMod[i-1])
		solVec := mat.NewVecDense(nPrev, nil)
		if err := chol.SolveVecTo(solVec, rVec); err != nil {
			return nil, false
		}
		var corrVec mat.VecDense
		corrVec.MulVec(bt.Sub[i-1], solVec)

		rNew := make([]float64, nCur)
		for k := 0; k < nCur; k++ {
			rNew[k] = rhs[i][k] - corrVec.AtVec(k)
		}
		rMod[i] = rNew
	}

	cholLast, ok := factorSPD(dMod[m-1])
	if !ok {
		return nil, false
	}
	chols[m-1] = cholLast

	x := make([][]float64, m)
	nLast, _ := dMod[m-1].Dims()
	xLast := mat.NewVecDense(nLast, nil)
	if err := cholLast.SolveVecTo(xLast, mat.NewVecDense(nLast, rMod[m-1])); err != nil {
		return nil, false
	}
	x[m-1] = xLast.RawVector().Data

	for i := m - 2; i >= 0; i-- {
		nCur, _ := dMod[i].Dims()
		var corr mat.VecDense
		corr.MulVec(bt.Sub[i].T(), mat.NewVecDense(len(x[i+1]), x[i+1]))

		rhsVec := mat.NewVecDense(nCur, nil)
		for k := 0; k < nCur; k++ {
			rhsVec.SetVec(k, rMod[i][k]-corr.AtVec(k))
		}

		xi := mat.NewVecDense(nCur, nil)
		if err := chols[i].SolveVecTo(xi, rhsVec); err != nil {
			return nil, false
		}
		x[i] = xi.RawVector().Data
	}

	return x, true
}

func factorSPD(m *mat.Dense) (*mat.Cholesky, bool) {
	n, _ := m.Dims()
	sym := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sym.Set(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	chol := new(mat.Cholesky)
	if ok := chol.Factorize(mat.NewSymDense(n, sym.RawMatrix().Data)); !ok {
		return nil, false
	}
	return chol, true
}
