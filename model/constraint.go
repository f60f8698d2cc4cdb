package model

// ConstraintSet is a closed convex set C with cheap projection and a
// normal-cone membership test. The equality set, the negative orthant,
// a cone product, and a box are the variants named in the specification;
// concrete implementations live in package euclid.
type ConstraintSet interface {
	// Dim is the ambient dimension of the set.
	Dim() int

	// Projection returns Pi_C(z).
	Projection(z []float64) []float64

	// NormalConeProjection returns the projection of z onto the normal
	// cone of C (used for the "plus" multiplier update of inequality
	// blocks).
	NormalConeProjection(z []float64) []float64

	// IsInNormalCone reports whether lambda lies in the normal cone of C
	// at the point z.
	IsInNormalCone(z, lambda []float64) bool
}
