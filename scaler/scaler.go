// Package scaler implements the per-stage constraint proximal scaler:
// a diagonal reweighting of the augmented-Lagrangian penalty applied to
// each constraint block, so that badly-conditioned blocks (a terminal
// equality next to a loose bound, say) do not all get the same mu.
package scaler

import "fmt"

// Scaler holds one scalar weight per constraint block and exposes the
// block-repeated diagonal matrix the driver folds into the AL penalty.
// A block's rows all share its weight; Scaler never inspects the
// constraint Jacobians themselves, only the row counts it is told.
type Scaler struct {
	blockSizes []int
	weights    []float64
	size       int
}

// New builds a scaler over blocks of the given row counts, all weights
// initialized to 1.
func New(blockSizes []int) *Scaler {
	s := &Scaler{
		blockSizes: append([]int{}, blockSizes...),
		weights:    make([]float64, len(blockSizes)),
	}
	for i := range s.weights {
		s.weights[i] = 1
	}
	for _, n := range blockSizes {
		s.size += n
	}
	return s
}

// Size returns the total number of constraint rows across all blocks.
func (s *Scaler) Size() int { return s.size }

// NumBlocks returns the number of constraint blocks.
func (s *Scaler) NumBlocks() int { return len(s.blockSizes) }

// SetWeight sets block j's weight. j out of range is an error.
func (s *Scaler) SetWeight(j int, v float64) error {
	if j < 0 || j >= len(s.weights) {
		return fmt.Errorf("scaler: block index %d out of range [0,%d)", j, len(s.weights))
	}
	s.weights[j] = v
	return nil
}

// Weight returns block j's weight. j out of range is an error.
func (s *Scaler) Weight(j int) (float64, error) {
	if j < 0 || j >= len(s.weights) {
		return 0, fmt.Errorf("scaler: block index %d out of range [0,%d)", j, len(s.weights))
	}
	return s.weights[j], nil
}

// SetWeights replaces every block's weight at once. A length mismatch
// against NumBlocks is an error and leaves the scaler unchanged.
func (s *Scaler) SetWeights(w []float64) error {
	if len(w) != len(s.weights) {
		return fmt.Errorf("scaler: SetWeights expected %d weights, got %d", len(s.weights), len(w))
	}
	copy(s.weights, w)
	return nil
}

// DiagMatrix returns the Size()-length vector with each block's weight
// repeated across its rows, the diagonal the driver multiplies the AL
// penalty strength by.
func (s *Scaler) DiagMatrix() []float64 {
	out := make([]float64, s.size)
	off := 0
	for j, n := range s.blockSizes {
		w := s.weights[j]
		for i := 0; i < n; i++ {
			out[off+i] = w
		}
		off += n
	}
	return out
}

// BlockKind distinguishes an equality-like block (dynamics, terminal
// equality) from an inequality cone for ApplyDefaultScalingStrategy.
type BlockKind int

const (
	Inequality BlockKind = iota
	Equality
)

// ApplyDefaultScalingStrategy sets an equality-like block's weight to
// defaultEqualityWeight (10 in the concrete end-to-end scenarios) and an
// inequality block's weight to the baseline 1. kinds must have the same
// length as NumBlocks().
func (s *Scaler) ApplyDefaultScalingStrategy(kinds []BlockKind) error {
	if len(kinds) != len(s.weights) {
		return fmt.Errorf("scaler: ApplyDefaultScalingStrategy expected %d kinds, got %d", len(s.weights), len(kinds))
	}
	for j, kind := range kinds {
		if kind == Equality {
			s.weights[j] = defaultEqualityWeight
		} else {
			s.weights[j] = defaultInequalityWeight
		}
	}
	return nil
}

const (
	defaultEqualityWeight   = 10.0
	defaultInequalityWeight = 1.0
)
