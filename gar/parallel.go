package gar

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/lqr"
	"github.com/prox-ddp/solver/riccati"
)

// leg is one contiguous sub-horizon [start, end) of the full stage
// sequence, solved independently by the serial Riccati sweep. Every leg
// but the last is parameterized on the tangent of its boundary state so
// that the legs can be joined by a small condensed system afterwards.
type leg struct {
	start, end int
	stages     []*lqr.Knot
	datas      []*riccati.StageFactor
	isLast     bool
}

// ParallelSolver splits a horizon into legs and solves the per-leg
// Riccati sweeps concurrently on a fixed worker pool, joining the legs
// by assembling and solving a small block-tridiagonal condensed system
// over their boundary duals.
type ParallelSolver struct {
	pool     *Pool
	splitIdx []int
	legs     []*leg
}

// NewParallelSolver splits stages into numLegs contiguous legs (as even
// as possible) and allocates per-knot Riccati stage factors, adding a
// tangent parameterization to every knot of every non-final leg.
func NewParallelSolver(pool *Pool, stages []*lqr.Knot, numLegs int) (*ParallelSolver, error) {
	if numLegs < 1 {
		return nil, fmt.Errorf("gar: numLegs must be >= 1, got %d", numLegs)
	}
	n := len(stages)
	if numLegs > n {
		numLegs = n
	}

	splitIdx := makeSplitIndices(n, numLegs)
	ps := &ParallelSolver{pool: pool, splitIdx: splitIdx}

	for i := 0; i < numLegs; i++ {
		isLast := i == numLegs-1
		l := buildLeg(stages, splitIdx[i], splitIdx[i+1], isLast)
		ps.legs = append(ps.legs, l)
	}

	if err := ps.checkIndices(); err != nil {
		return nil, err
	}
	return ps, nil
}

// makeSplitIndices divides [0, n) into numLegs contiguous spans whose
// sizes differ by at most one knot.
func makeSplitIndices(n, numLegs int) []int {
	idx := make([]int, numLegs+1)
	base := n / numLegs
	rem := n % numLegs
	pos := 0
	for i := 0; i < numLegs; i++ {
		idx[i] = pos
		size := base
		if i < rem {
			size++
		}
		pos += size
	}
	idx[numLegs] = n
	return idx
}

// buildLeg allocates the stage factors for stages[start:end] and, for
// every non-final leg, parameterizes each knot on the tangent of the
// boundary state, setting the Gx, Gu, gamma link at the leg's last knot
// (the knot whose outgoing dynamics transition crosses into the next
// leg).
func buildLeg(stages []*lqr.Knot, start, end int, isLast bool) *leg {
	l := &leg{start: start, end: end, isLast: isLast}
	l.stages = stages[start:end]
	l.datas = make([]*riccati.StageFactor, end-start)

	for t := start; t < end; t++ {
		k := stages[t]
		if !isLast {
			k.AddParameterization(k.Nx)
		}
		l.datas[t-start] = riccati.NewStageFactor(k.Nx, k.Nu, k.Nc, k.Nth)
	}

	if !isLast {
		// The leg's last knot glues to the next leg via its dynamics
		// transition A x + B u + f = x'. theta stands in for the
		// multiplier of that transition, so the link term theta'(A x +
		// B u + f) requires Gx = A, Gu = B directly (see
		// riccati.addLinkHamiltonian, which forms Hxt = Gx', Hut = Gu').
		last := stages[end-1]
		last.Gx.Copy(last.A)
		last.Gu.Copy(last.B)
		copy(last.GammaVec(), last.F())
	}
	return l
}

// checkIndices verifies the leg spans exactly cover [0, n) with no gaps
// or overlaps.
func (ps *ParallelSolver) checkIndices() error {
	for i := 1; i < len(ps.splitIdx); i++ {
		if ps.splitIdx[i] <= ps.splitIdx[i-1] {
			return fmt.Errorf("gar: leg split indices must be strictly increasing, got %v", ps.splitIdx)
		}
	}
	for i, l := range ps.legs {
		if l.start != ps.splitIdx[i] || l.end != ps.splitIdx[i+1] {
			return fmt.Errorf("gar: leg %d span [%d,%d) does not match split index [%d,%d)", i, l.start, l.end, ps.splitIdx[i], ps.splitIdx[i+1])
		}
	}
	return nil
}

// Backward runs every leg's serial Riccati backward sweep concurrently
// on the pool, returning false if any leg's sweep fails. opts forwards
// to riccati.Backward unchanged, so a WithRefinement option applies
// independently within each leg.
func (ps *ParallelSolver) Backward(mudyn, mueq, reg float64, opts ...riccati.RefineOption) bool {
	results := make([]bool, len(ps.legs))
	fns := make([]func(), len(ps.legs))
	for i, l := range ps.legs {
		i, l := i, l
		fns[i] = func() {
			results[i] = riccati.Backward(l.stages, mudyn, mueq, reg, l.datas, opts...)
		}
	}
	ps.pool.Run(fns)
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// assembleCondensedSystem builds the (numLegs-1)-block tridiagonal
// system over the leg-boundary gluing duals theta_0 .. theta_{J-2},
// whose stationarity conditions join the independently-solved legs into
// a globally consistent Riccati solution. dx0 is the initial state
// deviation of leg 0.
func (ps *ParallelSolver) assembleCondensedSystem(dx0 []float64) (*BlockTridiag, [][]float64) {
	m := len(ps.legs) - 1
	if m <= 0 {
		return &BlockTridiag{}, nil
	}

	bt := &BlockTridiag{
		Diag: make([]*mat.Dense, m),
		Sub:  make([]*mat.Dense, m-1),
	}
	rhs := make([][]float64, m)

	for i := 0; i < m; i++ {
		vmI := ps.legs[i].datas[0].VM   // leg i's value function at its start knot, parameterized on theta_i
		pNext := ps.legs[i+1].datas[0].VM

		nth := ps.legs[i].datas[0].Nth
		diag := mat.NewDense(nth, nth, nil)
		diag.Add(vmI.Vtt, pNext.Pmat)
		bt.Diag[i] = diag

		r := make([]float64, nth)
		for k := 0; k < nth; k++ {
			r[k] = -(vmI.Vt[k] + pNext.Pvec[k])
		}
		if i == 0 {
			var vxtTdx0 mat.VecDense
			vxtTdx0.MulVec(vmI.Vxt.T(), mat.NewVecDense(len(dx0), dx0))
			for k := 0; k < nth; k++ {
				r[k] -= vxtTdx0.AtVec(k)
			}
		}
		rhs[i] = r

		if i > 0 {
			sub := mat.NewDense(nth, nth, nil)
			sub.CloneFrom(vmI.Vxt.T())
			bt.Sub[i-1] = sub
		}
	}

	return bt, rhs
}

// Forward solves the condensed system for the leg-boundary duals and
// then runs every leg's forward rollout concurrently, returning the
// per-knot steps indexed the same way as the original stage sequence.
func (ps *ParallelSolver) Forward(dx0 []float64) ([]riccati.Step, bool) {
	bt, rhs := ps.assembleCondensedSystem(dx0)
	thetas, ok := bt.Solve(rhs)
	if !ok {
		return nil, false
	}

	n := ps.splitIdx[len(ps.splitIdx)-1]
	steps := make([]riccati.Step, n)
	for i := range ps.legs {
		for t := range ps.legs[i].stages {
			steps[ps.legs[i].start+t] = riccati.Step{}
		}
	}

	fns := make([]func(), len(ps.legs))
	for i, l := range ps.legs {
		i, l := i, l
		fns[i] = func() {
			var initial []float64
			if i == 0 {
				initial = dx0
			} else {
				initial = thetas[i-1]
			}
			var theta []float64
			if !l.isLast {
				theta = thetas[i]
			}
			legSteps := riccati.NewSteps(l.stages, l.datas)
			riccati.Forward(l.stages, l.datas, initial, theta, legSteps)
			copy(steps[l.start:l.end], legSteps)
		}
	}
	ps.pool.Run(fns)

	return steps, true
}
