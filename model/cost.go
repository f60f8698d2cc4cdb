package model

import "gonum.org/v1/gonum/mat"

// CostData is per-call scratch for a Cost evaluation.
type CostData struct {
	Value float64
	Lx    []float64
	Lu    []float64
	Lxx   *mat.Dense
	Luu   *mat.Dense
	Lxu   *mat.Dense
}

// NewCostData allocates scratch for a stage of state-tangent size ndx and
// control size nu.
func NewCostData(ndx, nu int) *CostData {
	return &CostData{
		Lx:  make([]float64, ndx),
		Lu:  make([]float64, nu),
		Lxx: mat.NewDense(ndx, ndx, nil),
		Luu: mat.NewDense(nu, nu, nil),
		Lxu: mat.NewDense(nu, ndx, nil),
	}
}

// Cost is a stage or terminal cost ell(x, u). Terminal costs are
// evaluated with a zero-length u.
type Cost interface {
	CreateData() *CostData

	Evaluate(x, u []float64, data *CostData)
	ComputeGradients(x, u []float64, data *CostData)
	ComputeHessians(x, u []float64, data *CostData)
}
