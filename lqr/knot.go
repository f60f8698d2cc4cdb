// Package lqr implements the per-stage linear-quadratic data model that
// the Riccati solvers factorize: the Knot (one time step's cost,
// dynamics and constraint data) and the Problem (an ordered sequence of
// knots plus an initial condition).
package lqr

import "gonum.org/v1/gonum/mat"

// Knot holds one time step's linear-quadratic data:
//
//   - cost blocks Q, R, S, q, r of size nx x nx, nu x nu, nu x nx, nx, nu
//   - dynamics A, B, E, f such that A x + B u + E x' + f = 0
//   - constraint Jacobians C, D, d of size nc x nx, nc x nu, nc
//   - an optional parameterization Gx, Gu, Gamma, gamma linking the knot
//     to a vector parameter theta of size Nth, used to glue legs in the
//     parallel Riccati solver.
//
// Clone yields an independent knot with the same numerical content.
// Plain assignment copies the struct but not the backing matrices and
// vectors, so the two knots share them.
type Knot struct {
	Nx, Nu, Nc, Nth int

	Q, R, S *mat.Dense
	q, r    []float64

	A, B, E *mat.Dense
	f       []float64

	C, D *mat.Dense
	d    []float64

	Gx, Gu *mat.Dense
	Gamma  *mat.Dense
	gamma  []float64
}

// NewKnot allocates a zeroed knot of the given dimensions with no
// parameterization (Nth == 0).
func NewKnot(nx, nu, nc int) *Knot {
	k := &Knot{Nx: nx, Nu: nu, Nc: nc}
	k.Q = mat.NewDense(nx, nx, nil)
	k.R = mat.NewDense(nu, nu, nil)
	k.S = mat.NewDense(nu, nx, nil)
	k.q = make([]float64, nx)
	k.r = make([]float64, nu)

	k.A = mat.NewDense(nx, nx, nil)
	k.B = mat.NewDense(nx, nu, nil)
	k.E = mat.NewDense(nx, nx, nil)
	k.f = make([]float64, nx)

	nc = max(nc, 0)
	k.C = mat.NewDense(nc, nx, nil)
	k.D = mat.NewDense(nc, nu, nil)
	k.d = make([]float64, nc)
	return k
}

// AddParameterization allocates the Gx, Gu, Gamma, gamma parameter-link
// blocks of tangent size nth, leaving (Q, R, S, q, r, A, B, E, f)
// unchanged.
func (k *Knot) AddParameterization(nth int) {
	k.Nth = nth
	k.Gx = mat.NewDense(nth, k.Nx, nil)
	k.Gu = mat.NewDense(nth, k.Nu, nil)
	k.Gamma = mat.NewDense(nth, nth, nil)
	k.gamma = make([]float64, nth)
}

// GammaVec returns the gamma vector of the parameterization; nil when
// Nth == 0.
func (k *Knot) GammaVec() []float64 { return k.gamma }

// DVec returns the d vector of the constraint block; empty when Nc == 0.
func (k *Knot) DVec() []float64 { return k.d }

// F returns the dynamics shift vector.
func (k *Knot) F() []float64 { return k.f }

// Qvec, Rvec return the linear cost terms.
func (k *Knot) Qvec() []float64 { return k.q }
func (k *Knot) Rvec() []float64 { return k.r }

// Clone returns a deep copy of the knot: independent backing storage, the
// same numerical content.
func (k *Knot) Clone() *Knot {
	c := &Knot{Nx: k.Nx, Nu: k.Nu, Nc: k.Nc, Nth: k.Nth}
	c.Q = cloneDense(k.Q)
	c.R = cloneDense(k.R)
	c.S = cloneDense(k.S)
	c.q = cloneVec(k.q)
	c.r = cloneVec(k.r)
	c.A = cloneDense(k.A)
	c.B = cloneDense(k.B)
	c.E = cloneDense(k.E)
	c.f = cloneVec(k.f)
	c.C = cloneDense(k.C)
	c.D = cloneDense(k.D)
	c.d = cloneVec(k.d)
	if k.Nth > 0 {
		c.Gx = cloneDense(k.Gx)
		c.Gu = cloneDense(k.Gu)
		c.Gamma = cloneDense(k.Gamma)
		c.gamma = cloneVec(k.gamma)
	}
	return c
}

// Swap exchanges the contents of k and other in place.
func (k *Knot) Swap(other *Knot) {
	*k, *other = *other, *k
}

// Equal reports whether k and other are structurally and element-wise
// equal.
func (k *Knot) Equal(other *Knot) bool {
	if k.Nx != other.Nx || k.Nu != other.Nu || k.Nc != other.Nc || k.Nth != other.Nth {
		return false
	}
	return denseEqual(k.Q, other.Q) && denseEqual(k.R, other.R) && denseEqual(k.S, other.S) &&
		vecEqual(k.q, other.q) && vecEqual(k.r, other.r) &&
		denseEqual(k.A, other.A) && denseEqual(k.B, other.B) && denseEqual(k.E, other.E) &&
		vecEqual(k.f, other.f) &&
		denseEqual(k.C, other.C) && denseEqual(k.D, other.D) && vecEqual(k.d, other.d) &&
		denseEqual(k.Gx, other.Gx) && denseEqual(k.Gu, other.Gu) &&
		denseEqual(k.Gamma, other.Gamma) && vecEqual(k.gamma, other.gamma)
}

func cloneDense(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	var c mat.Dense
	c.CloneFrom(m)
	return &c
}

func cloneVec(v []float64) []float64 {
	c := make([]float64, len(v))
	copy(c, v)
	return c
}

func denseEqual(a, b *mat.Dense) bool {
	if a == nil || b == nil {
		return a == b
	}
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return false
	}
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			if a.At(i, j) != b.At(i, j) {
				return false
			}
		}
	}
	return true
}

func vecEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
