package scaler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeIsConstant(t *testing.T) {
	s := New([]int{2, 3, 1})
	require.Equal(t, 6, s.Size())
	require.NoError(t, s.SetWeight(1, 7))
	require.Equal(t, 6, s.Size())
}

func TestSetWeightsWrongSizeFails(t *testing.T) {
	s := New([]int{2, 3})
	err := s.SetWeights([]float64{1, 2, 3})
	require.Error(t, err)
	// unchanged on failure
	require.Equal(t, []float64{1, 1}, s.weights)
}

func TestDiagMatrixRepeatsWeightsPerBlock(t *testing.T) {
	s := New([]int{2, 1, 3})
	require.NoError(t, s.SetWeights([]float64{5, 9, 2}))
	require.Equal(t, []float64{5, 5, 9, 2, 2, 2}, s.DiagMatrix())
}

func TestSetWeightOutOfRangeIsError(t *testing.T) {
	s := New([]int{2})
	require.Error(t, s.SetWeight(-1, 1))
	require.Error(t, s.SetWeight(1, 1))
	_, err := s.Weight(5)
	require.Error(t, err)
}

func TestApplyDefaultScalingStrategy(t *testing.T) {
	s := New([]int{2, 3})
	require.NoError(t, s.ApplyDefaultScalingStrategy([]BlockKind{Equality, Inequality}))
	w0, _ := s.Weight(0)
	w1, _ := s.Weight(1)
	require.Equal(t, 10.0, w0)
	require.Equal(t, 1.0, w1)
}

func TestApplyDefaultScalingStrategyWrongSizeFails(t *testing.T) {
	s := New([]int{2, 3})
	require.Error(t, s.ApplyDefaultScalingStrategy([]BlockKind{Equality}))
}
