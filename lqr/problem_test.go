package lqr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeTestProblem(n int) *Problem {
	stages := make([]*Knot, n)
	for i := range stages {
		stages[i] = randomKnot(4, 2, 0)
	}
	return NewProblem(stages, 4)
}

func TestProblemEqualAfterClone(t *testing.T) {
	p := makeTestProblem(10)
	c := p.Clone()
	require.True(t, p.Equal(c))
}

func TestProblemAddParameterizationPreservesCost(t *testing.T) {
	p := makeTestProblem(10)
	c := p.Clone()

	c.AddParameterization(1)

	for i := range p.Stages {
		require.True(t, denseEqual(p.Stages[i].Q, c.Stages[i].Q))
		require.Equal(t, 1, c.Stages[i].Nth)
	}
}
