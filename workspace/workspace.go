// Package workspace holds the pre-allocated, problem-sized buffers the
// ProxDDP driver reads and writes on every outer and inner iteration: the
// current and trial primal trajectories, the dynamics and path
// multipliers and their AL-shifted variants, the nested LQ approximation,
// and one scaler.Scaler per stage. Nothing here performs algorithmic
// work; these buffers are allocated once, in New. The driver's loops
// still allocate per-call scratch outside the workspace (model
// callback data, Riccati forward steps, merit and rollout vectors).
package workspace

import (
	"github.com/prox-ddp/solver/gar"
	"github.com/prox-ddp/solver/lqr"
	"github.com/prox-ddp/solver/riccati"
	"github.com/prox-ddp/solver/scaler"
)

// StageBlocks is the shape of one stage's model-side collaborators, used
// only to size the workspace: NX/NDX/NU/NC describe its state tangent,
// control, and constraint-row dimensions, and BlockSizes/BlockKinds
// describe the constraint sub-blocks the scaler is built over.
type StageBlocks struct {
	NX, NDX, NU, NC int
	BlockSizes      []int
	BlockKinds      []scaler.BlockKind
}

// Workspace is constructed once per problem (via New) and reused across
// every outer AL iteration and inner Newton loop of a single Run.
type Workspace struct {
	N int // horizon: len(Xs) == N+1, len(Us) == N

	// Current primal-dual iterate.
	Xs   [][]float64
	Us   [][]float64
	Lams [][]float64 // dynamics multiplier, index 0..N-1
	Vs   [][]float64 // path-constraint multiplier, index 0..N

	// Trial iterate produced by the line search.
	XsTrial [][]float64
	UsTrial [][]float64

	// Previous outer iteration's accepted iterate, used by the proximal
	// term in the merit function and by the BCL multiplier test.
	PrevXs   [][]float64
	PrevUs   [][]float64
	PrevLams [][]float64
	PrevVs   [][]float64

	// AL-shifted and PDAL ("primal-dual AL") multiplier variants.
	LamsPlus [][]float64
	LamsPdal [][]float64
	VsPlus   [][]float64
	VsPdal   [][]float64

	// Search direction produced by the Riccati forward sweep.
	Dxs   [][]float64
	Dus   [][]float64
	Dlams [][]float64
	Dvs   [][]float64

	// Per-stage infeasibility accumulators.
	StageInfeas       []float64
	StateDualInfeas   []float64
	ControlDualInfeas []float64

	// The nested LQ problem rebuilt from (Xs, Us, Lams, Vs) every outer
	// iteration, and its Riccati factors.
	Problem *lqr.Problem
	Datas   []*riccati.StageFactor

	// One scaler per stage (constraint row blocks), plus the parallel
	// solver's leg pool, both sized once at construction.
	CstrScalers []*scaler.Scaler
	Pool        *gar.Pool

	// Parallel is non-nil once EnableParallel has split w.Problem.Stages
	// into legs; innerLoop dispatches to it instead of the serial
	// riccati.Backward/Forward when set.
	Parallel *gar.ParallelSolver
}

// New allocates a Workspace sized to blocks, one entry per time step
// 0..N (len(blocks) == N+1, the last entry's NU/NC describing the
// terminal stage). numThreads sizes the persistent worker pool used by
// the parallel Riccati solver; a non-positive value is treated as 1.
func New(blocks []StageBlocks, numThreads int) *Workspace {
	n := len(blocks) - 1
	w := &Workspace{N: n}

	w.Xs = make([][]float64, n+1)
	w.Us = make([][]float64, n)
	w.Lams = make([][]float64, n)
	w.Vs = make([][]float64, n+1)
	w.XsTrial = make([][]float64, n+1)
	w.UsTrial = make([][]float64, n)
	w.PrevXs = make([][]float64, n+1)
	w.PrevUs = make([][]float64, n)
	w.PrevLams = make([][]float64, n)
	w.PrevVs = make([][]float64, n+1)
	w.LamsPlus = make([][]float64, n)
	w.LamsPdal = make([][]float64, n)
	w.VsPlus = make([][]float64, n+1)
	w.VsPdal = make([][]float64, n+1)
	w.Dxs = make([][]float64, n+1)
	w.Dus = make([][]float64, n)
	w.Dlams = make([][]float64, n)
	w.Dvs = make([][]float64, n+1)
	w.StageInfeas = make([]float64, n+1)
	w.StateDualInfeas = make([]float64, n+1)
	w.ControlDualInfeas = make([]float64, n)
	w.CstrScalers = make([]*scaler.Scaler, n+1)

	knots := make([]*lqr.Knot, n+1)

	for t, b := range blocks {
		w.Xs[t] = make([]float64, b.NX)
		w.XsTrial[t] = make([]float64, b.NX)
		w.PrevXs[t] = make([]float64, b.NX)
		w.Dxs[t] = make([]float64, b.NDX)
		w.Vs[t] = make([]float64, b.NC)
		w.PrevVs[t] = make([]float64, b.NC)
		w.VsPlus[t] = make([]float64, b.NC)
		w.VsPdal[t] = make([]float64, b.NC)
		w.Dvs[t] = make([]float64, b.NC)

		if t < n {
			w.Us[t] = make([]float64, b.NU)
			w.UsTrial[t] = make([]float64, b.NU)
			w.PrevUs[t] = make([]float64, b.NU)
			w.Dus[t] = make([]float64, b.NU)
			w.Lams[t] = make([]float64, b.NDX)
			w.PrevLams[t] = make([]float64, b.NDX)
			w.LamsPlus[t] = make([]float64, b.NDX)
			w.LamsPdal[t] = make([]float64, b.NDX)
			w.Dlams[t] = make([]float64, b.NDX)
			w.ControlDualInfeas[t] = 0
		}

		w.CstrScalers[t] = scaler.New(b.BlockSizes)
		if len(b.BlockKinds) > 0 {
			_ = w.CstrScalers[t].ApplyDefaultScalingStrategy(b.BlockKinds)
		}

		knots[t] = lqr.NewKnot(b.NDX, b.NU, b.NC)
	}

	w.Problem = lqr.NewProblem(knots, blocks[0].NDX)
	w.Datas = make([]*riccati.StageFactor, n+1)
	for t, k := range knots {
		w.Datas[t] = riccati.NewStageFactor(k.Nx, k.Nu, k.Nc, k.Nth)
	}

	if numThreads < 1 {
		numThreads = 1
	}
	w.Pool = gar.NewPool(numThreads)

	return w
}

// Close releases the workspace's worker pool. Call once the solver is
// done with this Workspace.
func (w *Workspace) Close() {
	w.Pool.Close()
}

// EnableParallel splits w.Problem.Stages into numLegs legs on w.Pool, so
// that every subsequent inner-loop Backward/Forward call runs the
// concurrent leg sweep instead of the serial one. The split is built
// once against the knot pointers themselves: buildLQApproximation's
// per-iteration writes into those same knots are visible to every leg
// without rebuilding the split.
func (w *Workspace) EnableParallel(numLegs int) error {
	ps, err := gar.NewParallelSolver(w.Pool, w.Problem.Stages, numLegs)
	if err != nil {
		return err
	}
	w.Parallel = ps
	return nil
}

// AcceptTrial copies the trial primals into the current iterate, the
// shape a successful line search step commits.
func (w *Workspace) AcceptTrial() {
	for t := range w.Xs {
		copy(w.Xs[t], w.XsTrial[t])
	}
	for t := range w.Us {
		copy(w.Us[t], w.UsTrial[t])
	}
}

// SnapshotPrev records the current iterate as the "previous" one the
// next outer iteration's proximal term and BCL test compare against.
func (w *Workspace) SnapshotPrev() {
	for t := range w.Xs {
		copy(w.PrevXs[t], w.Xs[t])
		copy(w.PrevVs[t], w.Vs[t])
	}
	for t := range w.Us {
		copy(w.PrevUs[t], w.Us[t])
		copy(w.PrevLams[t], w.Lams[t])
	}
}
