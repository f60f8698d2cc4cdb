package lqr

import "gonum.org/v1/gonum/mat"

// Problem is a linear-quadratic problem: an initial constraint G0 x0 +
// g0 = 0 of row-count Nc0, an ordered sequence of knots, and an implicit
// terminal constraint folded into the last knot's cost/constraint
// blocks.
type Problem struct {
	Nc0    int
	G0     *mat.Dense
	G0_vec []float64 // named g0 in the specification; Go avoids the bare "g0" identifier clash with the G0 field
	Stages []*Knot
}

// NewProblem builds a problem from knots with the given initial state
// dimension nx0 and no initial constraint (Nc0 == 0); callers that need
// an initial equality constraint should set G0/g0 afterwards.
func NewProblem(stages []*Knot, nx0 int) *Problem {
	return &Problem{
		Stages: stages,
		G0:     mat.NewDense(0, nx0, nil),
		G0_vec: nil,
	}
}

// Horizon returns N, the number of transition knots (one fewer than the
// number of states in the trajectory).
func (p *Problem) Horizon() int { return len(p.Stages) - 1 }

// AddParameterization parameterizes every knot in the problem on a
// tangent of size nth.
func (p *Problem) AddParameterization(nth int) {
	for _, k := range p.Stages {
		k.AddParameterization(nth)
	}
}

// Equal reports whether p and other are structurally and element-wise
// equal: stage-by-stage knot equality plus equal initial constraint.
func (p *Problem) Equal(other *Problem) bool {
	if p.Nc0 != other.Nc0 || len(p.Stages) != len(other.Stages) {
		return false
	}
	if !denseEqual(p.G0, other.G0) || !vecEqual(p.G0_vec, other.G0_vec) {
		return false
	}
	for i := range p.Stages {
		if !p.Stages[i].Equal(other.Stages[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the problem.
func (p *Problem) Clone() *Problem {
	c := &Problem{Nc0: p.Nc0, G0: cloneDense(p.G0), G0_vec: cloneVec(p.G0_vec)}
	c.Stages = make([]*Knot, len(p.Stages))
	for i, k := range p.Stages {
		c.Stages[i] = k.Clone()
	}
	return c
}
