package euclid

import (
	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/model"
)

// QuadraticCost implements ell(x,u) = 1/2 (x-xref)'Q(x-xref) + 1/2 u'Ru,
// the stage cost used throughout the LQR test scenarios. Q and R must be
// symmetric positive semi-definite.
type QuadraticCost struct {
	Q, R *mat.Dense
	Xref []float64
}

func NewQuadraticCost(q, r *mat.Dense, xref []float64) *QuadraticCost {
	return &QuadraticCost{Q: q, R: r, Xref: xref}
}

func (c *QuadraticCost) CreateData() *model.CostData {
	nx, _ := c.Q.Dims()
	nu := 0
	if c.R != nil {
		nu, _ = c.R.Dims()
	}
	return model.NewCostData(nx, nu)
}

func (c *QuadraticCost) dx(x []float64) []float64 {
	nx, _ := c.Q.Dims()
	dx := make([]float64, nx)
	for i := range dx {
		xref := 0.0
		if c.Xref != nil {
			xref = c.Xref[i]
		}
		dx[i] = x[i] - xref
	}
	return dx
}

func (c *QuadraticCost) Evaluate(x, u []float64, data *model.CostData) {
	dx := c.dx(x)
	dxv := mat.NewVecDense(len(dx), dx)
	var qdx mat.VecDense
	qdx.MulVec(c.Q, dxv)
	val := 0.5 * mat.Dot(dxv, &qdx)
	if len(u) > 0 && c.R != nil {
		uv := mat.NewVecDense(len(u), u)
		var ru mat.VecDense
		ru.MulVec(c.R, uv)
		val += 0.5 * mat.Dot(uv, &ru)
	}
	data.Value = val
}

func (c *QuadraticCost) ComputeGradients(x, u []float64, data *model.CostData) {
	dx := c.dx(x)
	dxv := mat.NewVecDense(len(dx), dx)
	lx := mat.NewVecDense(len(dx), data.Lx)
	lx.MulVec(c.Q, dxv)
	if len(u) > 0 && c.R != nil {
		uv := mat.NewVecDense(len(u), u)
		lu := mat.NewVecDense(len(u), data.Lu)
		lu.MulVec(c.R, uv)
	}
}

func (c *QuadraticCost) ComputeHessians(x, u []float64, data *model.CostData) {
	data.Lxx.Copy(c.Q)
	if c.R != nil {
		data.Luu.Copy(c.R)
	}
	data.Lxu.Zero()
}
