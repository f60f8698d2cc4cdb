package euclid

import (
	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/model"
)

// LinearFunction implements the stage residual r(x, u) = A x + B u + c,
// independent of the next state y: the shape every linear path constraint
// (a terminal state target, a control bound, a mixed state-control cone)
// reduces to once differentiated. Pass a zero matrix for A or B when the
// residual does not actually depend on x or u, matching
// LinearDynamics' own convention of always carrying both.
type LinearFunction struct {
	A, B *mat.Dense
	C    []float64
}

func NewLinearFunction(a, b *mat.Dense, c []float64) *LinearFunction {
	return &LinearFunction{A: a, B: b, C: c}
}

func (f *LinearFunction) NR() int { return len(f.C) }

func (f *LinearFunction) CreateData() *model.FunctionData {
	_, nx := f.A.Dims()
	_, nu := f.B.Dims()
	return model.NewFunctionData(f.NR(), nx, nu, 0)
}

func (f *LinearFunction) Evaluate(x, u, y []float64, data *model.FunctionData) {
	copy(data.Value, f.C)
	var ax mat.VecDense
	ax.MulVec(f.A, mat.NewVecDense(len(x), x))
	for i := range data.Value {
		data.Value[i] += ax.AtVec(i)
	}
	if len(u) > 0 {
		var bu mat.VecDense
		bu.MulVec(f.B, mat.NewVecDense(len(u), u))
		for i := range data.Value {
			data.Value[i] += bu.AtVec(i)
		}
	}
}

func (f *LinearFunction) ComputeJacobians(x, u, y []float64, data *model.FunctionData) {
	data.Jx.Copy(f.A)
	data.Ju.Copy(f.B)
}

func (f *LinearFunction) HasVectorHessianProducts() bool { return false }

func (f *LinearFunction) ComputeVectorHessianProducts(x, u, y, lambda []float64, data *model.FunctionData) {
}
