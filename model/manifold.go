// Package model defines the contracts that the modelling layer (costs,
// dynamics, manifolds, constraint sets) must satisfy for the solver core
// to operate on them. Nothing in this package performs numerical work;
// it only describes the shape of the collaborators the solver borrows.
package model

import "gonum.org/v1/gonum/mat"

// Manifold is a differentiable state space of nominal dimension NX and
// tangent dimension NDX. Implementations must satisfy the round-trip
// invariant Difference(x, Integrate(x, dx)) == dx to floating tolerance.
type Manifold interface {
	NX() int
	NDX() int

	// Neutral returns the neutral element of the space.
	Neutral() []float64
	// Rand returns a random element of the space.
	Rand() []float64

	// Integrate returns x' obtained by moving from x along the tangent
	// vector dx.
	Integrate(x, dx []float64) []float64
	// Difference returns the tangent vector dx such that
	// Integrate(x, dx) == y.
	Difference(x, y []float64) []float64

	// IntegrateJacobians returns the Jacobians of Integrate(x, dx) with
	// respect to x and dx respectively, both of size NDX x NDX.
	IntegrateJacobians(x, dx []float64) (dIntDx, dIntDdx *mat.Dense)
	// DifferenceJacobians returns the Jacobians of Difference(x, y) with
	// respect to x and y respectively, both of size NDX x NDX.
	DifferenceJacobians(x, y []float64) (dDiffDx, dDiffDy *mat.Dense)
}
