// Package euclid provides flat-Euclidean reference implementations of the
// model package's contracts: a vector-space manifold, quadratic costs,
// linear dynamics, and the constraint set variants named in the
// specification. These are the "modelling layer" plugins the solver core
// treats as external collaborators; euclid exists so the core is
// testable end to end without a full multibody/manifold stack.
package euclid

import "gonum.org/v1/gonum/mat"

// VectorSpace is the flat manifold R^n: Integrate is addition, Difference
// is subtraction, and both Jacobians are the identity.
type VectorSpace struct {
	N int
}

func NewVectorSpace(n int) *VectorSpace { return &VectorSpace{N: n} }

func (v *VectorSpace) NX() int  { return v.N }
func (v *VectorSpace) NDX() int { return v.N }

func (v *VectorSpace) Neutral() []float64 { return make([]float64, v.N) }

func (v *VectorSpace) Rand() []float64 {
	x := make([]float64, v.N)
	for i := range x {
		x[i] = pseudoRand(i)
	}
	return x
}

func (v *VectorSpace) Integrate(x, dx []float64) []float64 {
	y := make([]float64, v.N)
	for i := range y {
		y[i] = x[i] + dx[i]
	}
	return y
}

func (v *VectorSpace) Difference(x, y []float64) []float64 {
	dx := make([]float64, v.N)
	for i := range dx {
		dx[i] = y[i] - x[i]
	}
	return dx
}

func (v *VectorSpace) IntegrateJacobians(x, dx []float64) (dIntDx, dIntDdx *mat.Dense) {
	return eye(v.N), eye(v.N)
}

func (v *VectorSpace) DifferenceJacobians(x, y []float64) (dDiffDx, dDiffDy *mat.Dense) {
	dDiffDx = eye(v.N)
	dDiffDx.Scale(-1, dDiffDx)
	return dDiffDx, eye(v.N)
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// pseudoRand is a minimal deterministic generator so Rand is reproducible
// without importing math/rand into a hot type; callers who need real
// randomness should build their own Manifold.
func pseudoRand(seed int) float64 {
	x := uint64(seed)*2654435761 + 1
	x ^= x >> 13
	x *= 2246822519
	return float64(x%2000)/1000.0 - 1.0
}
