package model

import "gonum.org/v1/gonum/mat"

// FunctionData is per-call scratch for a StageFunction evaluation: the
// residual value and its Jacobians with respect to (x, u, y).
type FunctionData struct {
	Value []float64
	Jx    *mat.Dense
	Ju    *mat.Dense
	Jy    *mat.Dense

	// VHPxx, VHPxu, VHPuu hold the vector-Hessian products
	// sum_i lambda_i * d^2 f_i / d(.)d(.) when ComputeVectorHessianProducts
	// is supported; nil otherwise.
	VHPxx, VHPxu, VHPuu *mat.Dense
}

// NewFunctionData allocates scratch for a residual of size nr over a
// stage of state-tangent size ndx and control size nu, with ny the
// tangent size of the next state (ny == ndx for most stages).
func NewFunctionData(nr, ndx, nu, ny int) *FunctionData {
	return &FunctionData{
		Value: make([]float64, nr),
		Jx:    mat.NewDense(nr, ndx, nil),
		Ju:    mat.NewDense(nr, nu, nil),
		Jy:    mat.NewDense(nr, ny, nil),
	}
}

// StageFunction is a residual map r(x, u, y) of dimension NR, where y is
// the tangent vector of the next state. Dynamics are a StageFunction with
// NR == ndx of the next stage.
type StageFunction interface {
	NR() int
	CreateData() *FunctionData

	Evaluate(x, u, y []float64, data *FunctionData)
	ComputeJacobians(x, u, y []float64, data *FunctionData)

	// HasVectorHessianProducts reports whether ComputeVectorHessianProducts
	// is implemented; callers skip the call otherwise.
	HasVectorHessianProducts() bool
	ComputeVectorHessianProducts(x, u, y, lambda []float64, data *FunctionData)
}

// UnaryFunction is a StageFunction that only depends on x (terminal
// constraints, initial-condition residuals).
type UnaryFunction interface {
	NR() int
	CreateData() *FunctionData

	Evaluate(x []float64, data *FunctionData)
	ComputeJacobians(x []float64, data *FunctionData)
}
