package euclid

import (
	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/model"
)

// LinearDynamics implements the stage function
//
//	r(x, u, y) = A x + B u + c - y
//
// so that the dynamics constraint r(x,u,y) = 0 is equivalent to the
// explicit update x' = A x + B u + c, matching the LQ knot convention of
// A x + B u + E x' + f = 0 with E = -I, f = c.
type LinearDynamics struct {
	A, B *mat.Dense
	C    []float64
}

func NewLinearDynamics(a, b *mat.Dense, c []float64) *LinearDynamics {
	return &LinearDynamics{A: a, B: b, C: c}
}

func (d *LinearDynamics) NR() int {
	r, _ := d.A.Dims()
	return r
}

func (d *LinearDynamics) CreateData() *model.FunctionData {
	nr := d.NR()
	_, nx := d.A.Dims()
	_, nu := d.B.Dims()
	data := model.NewFunctionData(nr, nx, nu, nr)
	for i := 0; i < nr; i++ {
		data.Jy.Set(i, i, -1)
	}
	return data
}

func (d *LinearDynamics) Evaluate(x, u, y []float64, data *model.FunctionData) {
	xv := mat.NewVecDense(len(x), x)
	uv := mat.NewVecDense(len(u), u)
	out := mat.NewVecDense(d.NR(), data.Value)
	out.MulVec(d.A, xv)
	var bu mat.VecDense
	bu.MulVec(d.B, uv)
	out.AddVec(out, &bu)
	for i := range data.Value {
		data.Value[i] += d.C[i] - y[i]
	}
}

func (d *LinearDynamics) ComputeJacobians(x, u, y []float64, data *model.FunctionData) {
	data.Jx.Copy(d.A)
	data.Ju.Copy(d.B)
	// Jy is set to -I once in CreateData and never changes.
}

func (d *LinearDynamics) HasVectorHessianProducts() bool { return false }

func (d *LinearDynamics) ComputeVectorHessianProducts(x, u, y, lambda []float64, data *model.FunctionData) {
}
