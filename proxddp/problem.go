package proxddp

import (
	"fmt"

	"github.com/prox-ddp/solver/model"
)

// ConstraintBlock is one path-constraint block g_j(x,u) in C_j: a stage
// function (evaluated with an empty next-state tangent, since path
// constraints never depend on the next state) and the set it must lie
// in.
type ConstraintBlock struct {
	Fn  model.StageFunction
	Set model.ConstraintSet
}

// StageModel is one time step's collaborators: the manifold its state
// lives on, its cost, its dynamics (nil at the terminal stage), and its
// path-constraint blocks in declaration order (the order the scaler's
// per-block weights line up with).
type StageModel struct {
	Manifold    model.Manifold
	NU          int // control dimension; 0 at the terminal stage
	Cost        model.Cost
	Dynamics    model.StageFunction // NR() == next stage's NDX; nil at t == N
	Constraints []ConstraintBlock
}

// NC is the total path-constraint row count of this stage.
func (s *StageModel) NC() int {
	n := 0
	for _, c := range s.Constraints {
		n += c.Fn.NR()
	}
	return n
}

// BlockSizes returns the row count of each constraint block, in order.
func (s *StageModel) BlockSizes() []int {
	sizes := make([]int, len(s.Constraints))
	for i, c := range s.Constraints {
		sizes[i] = c.Fn.NR()
	}
	return sizes
}

// Problem is the ordered sequence of stage models plus the fixed initial
// state the solver starts every rollout from.
type Problem struct {
	Stages []*StageModel // length N+1
	X0     []float64
}

// Horizon returns N, the number of control stages.
func (p *Problem) Horizon() int { return len(p.Stages) - 1 }

// Validate checks internal dimensional consistency: every non-terminal
// stage's dynamics residual size must match the next stage's tangent
// dimension, and X0 must match the first stage's nominal dimension.
func (p *Problem) Validate() error {
	if len(p.Stages) < 2 {
		return fmt.Errorf("proxddp: problem must have at least one transition, got %d stages", len(p.Stages))
	}
	for t, s := range p.Stages {
		if s.Manifold == nil {
			return fmt.Errorf("proxddp: stage %d has no manifold", t)
		}
		if s.Cost == nil {
			return fmt.Errorf("proxddp: stage %d has no cost", t)
		}
		if t < len(p.Stages)-1 {
			if s.Dynamics == nil {
				return fmt.Errorf("proxddp: stage %d is non-terminal but has no dynamics", t)
			}
			if s.Dynamics.NR() != p.Stages[t+1].Manifold.NDX() {
				return fmt.Errorf("proxddp: stage %d dynamics residual size %d does not match stage %d tangent size %d",
					t, s.Dynamics.NR(), t+1, p.Stages[t+1].Manifold.NDX())
			}
		} else if s.Dynamics != nil {
			return fmt.Errorf("proxddp: terminal stage %d must not have dynamics", t)
		}
	}
	if len(p.X0) != p.Stages[0].Manifold.NX() {
		return fmt.Errorf("proxddp: X0 length %d does not match stage 0 nominal dimension %d", len(p.X0), p.Stages[0].Manifold.NX())
	}
	return nil
}
