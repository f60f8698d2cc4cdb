package riccati

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/prox-ddp/solver/lqr"
)

// effectiveDynamics writes into scr.aeff, scr.beff, scr.feff the triple
// (Aeff, Beff, feff) such that the implicit relation
// A x + B u + E x' + f = 0 is equivalent to the explicit update
// x' = Aeff x + Beff u + feff, i.e. Aeff = -E^-1 A, Beff = -E^-1 B,
// feff = -E^-1 f. In the common case E == -I this reduces to (A, B, f)
// exactly.
func effectiveDynamics(k *lqr.Knot, scr *scratch) bool {
	nx := k.Nx
	scr.edNegA.Scale(-1, k.A)
	if err := scr.aeff.Solve(k.E, scr.edNegA); err != nil {
		return false
	}

	if k.Nu > 0 {
		scr.edNegB.Scale(-1, k.B)
		if err := scr.beff.Solve(k.E, scr.edNegB); err != nil {
			return false
		}
	}

	fv := mat.NewVecDense(nx, k.F())
	scr.edNegF.ScaleVec(-1, fv)
	if err := scr.edFeffV.SolveVec(k.E, scr.edNegF); err != nil {
		return false
	}
	for i := 0; i < nx; i++ {
		scr.feff[i] = scr.edFeffV.AtVec(i)
	}
	return true
}

// RefineOption enables the optional iterative-refinement pass applied to
// each knot's condensed control solve: after solving Huu K = -Hux and
// Huu k = -hu against the Cholesky factor, recompute the residual of
// each solve against the original Huu/Hux/hu blocks and re-solve for the
// correction with the same factor, up to MaxSteps times or until the
// residual's infinity norm falls under Threshold. The zero value disables
// refinement.
type RefineOption struct {
	MaxSteps  int
	Threshold float64
}

// WithRefinement builds a RefineOption; maxSteps <= 0 disables refinement.
func WithRefinement(maxSteps int, threshold float64) RefineOption {
	return RefineOption{MaxSteps: maxSteps, Threshold: threshold}
}

func resolveRefine(opts []RefineOption) RefineOption {
	if len(opts) == 0 {
		return RefineOption{}
	}
	return opts[0]
}

// Backward runs the serial proximal Riccati backward sweep over stages,
// writing the value function and gain blocks into datas, from the last
// knot down to the first. mudyn, mueq are the augmented-Lagrangian
// penalty strengths on dynamics and path constraints respectively; reg
// is the regularization added to the (x,x) Hamiltonian block. It returns
// false if the condensed (u,u) block fails to factor as SPD at any
// knot, leaving datas in a partially-updated state.
//
// Path constraints are assumed to already be AL-shifted (the driver
// folds the previous multiplier and scaler weight into knot.C, knot.D,
// knot.d before calling Backward); an inactive constraint row is
// represented here by zeroing that row of C, D and d.
//
// opts optionally enables iterative refinement of the per-knot control
// solve via WithRefinement; omitting it keeps the single Cholesky solve.
//
// The named intermediate matrices and vectors come from the scratch
// buffers datas[t].scr, sized once by NewStageFactor and reused across
// every call. Backward still allocates on each call: the E solves in
// effectiveDynamics and relaxValueFunction go through Dense.Solve and
// VecDense.SolveVec, which factor a fresh LU, and the
// mat.NewVecDense/mat.NewSymDense views it wraps around slices are new
// values.
func Backward(stages []*lqr.Knot, mudyn, mueq, reg float64, datas []*StageFactor, opts ...RefineOption) bool {
	refine := resolveRefine(opts)
	n := len(stages)
	for t := n - 1; t >= 0; t-- {
		k := stages[t]
		sf := datas[t]

		var next *StageFactor
		if t < n-1 {
			next = datas[t+1]
		}

		if !backwardStep(k, next, mudyn, mueq, reg, sf, refine) {
			return false
		}
	}
	return true
}

func backwardStep(k *lqr.Knot, next *StageFactor, mudyn, mueq, reg float64, sf *StageFactor, refine RefineOption) bool {
	nx, nu, nc, nth := k.Nx, k.Nu, k.Nc, k.Nth
	scr := sf.scr

	scr.hxx.Copy(k.Q)
	for i := 0; i < nx; i++ {
		scr.hxx.Set(i, i, scr.hxx.At(i, i)+reg)
	}
	scr.huu.Copy(k.R)
	scr.hux.Copy(k.S)
	copy(scr.hx, k.Qvec())
	copy(scr.hu, k.Rvec())

	var hxt, hut, htt *mat.Dense
	var ht []float64
	if nth > 0 {
		hxt, hut, htt, ht = scr.hxt, scr.hut, scr.htt, scr.ht
		hxt.Zero()
		hut.Zero()
		htt.Zero()
		zeroVec(ht)
	}

	if nc > 0 {
		addConstraintHamiltonian(k, mueq, scr)
	}

	haveNext := next != nil
	if haveNext {
		if !effectiveDynamics(k, scr) {
			return false
		}
		relaxValueFunction(next.VM, mudyn, scr)
		addDynamicsHamiltonian(scr.aeff, scr.beff, scr.feff, scr.pEff, scr.pVecEff, next, scr.hxx, scr.huu, scr.hux, scr.hx, scr.hu, hxt, hut, htt, ht, scr)
	}

	if k.Gx != nil && nth > 0 {
		addLinkHamiltonian(k, hxt, hut, ht)
	}

	if !eliminateControl(nx, nu, nth, scr.hxx, scr.huu, scr.hux, scr.hx, scr.hu, hxt, hut, htt, ht, sf, refine) {
		return false
	}

	computeDualFeedbacks(k, next, scr.aeff, scr.beff, scr.feff, scr.pEff, scr.pVecEff, mueq, sf)
	return true
}

// relaxValueFunction softens a value function's curvature by the
// dynamics AL strength mudyn, approximating the effect of the proximal
// relaxation of the dynamics equality on the next stage's value
// function: Ptilde = (I + mudyn P)^-1 P, ptilde = (I + mudyn P)^-1 p.
// At mudyn == 0 this is the identity (Ptilde, ptilde) = (P, p), and
// vm's buffers are copied unchanged into scr.pEff/scr.pVecEff.
func relaxValueFunction(vm ValueFunction, mudyn float64, scr *scratch) {
	nx, _ := vm.Pmat.Dims()
	if mudyn == 0 {
		scr.pEff.Copy(vm.Pmat)
		copy(scr.pVecEff, vm.Pvec)
		return
	}
	scr.rvIPlusMuP.Scale(mudyn, vm.Pmat)
	for i := 0; i < nx; i++ {
		scr.rvIPlusMuP.Set(i, i, scr.rvIPlusMuP.At(i, i)+1)
	}
	if err := scr.pEff.Solve(scr.rvIPlusMuP, vm.Pmat); err != nil {
		scr.pEff.Copy(vm.Pmat)
		copy(scr.pVecEff, vm.Pvec)
		return
	}
	pvecWrap := mat.NewVecDense(nx, vm.Pvec)
	if err := scr.rvPvecTilde.SolveVec(scr.rvIPlusMuP, pvecWrap); err != nil {
		scr.pEff.Copy(vm.Pmat)
		copy(scr.pVecEff, vm.Pvec)
		return
	}
	for i := 0; i < nx; i++ {
		scr.pVecEff[i] = scr.rvPvecTilde.AtVec(i)
	}
}

// computeDualFeedbacks expresses the dynamics multiplier (lambda) and the
// path-constraint multiplier (v) as affine functions of the state (and
// parameter theta, when present), using the already-eliminated control
// feedback in sf.
func computeDualFeedbacks(k *lqr.Knot, next *StageFactor, aeff, beff *mat.Dense, feff []float64, pEff *mat.Dense, pVecEff []float64, mueq float64, sf *StageFactor) {
	scr := sf.scr
	if next != nil {
		p := pEff
		// Kdyn = P_{t+1} (Aeff + Beff K)
		scr.cdAPlusBK.Copy(aeff)
		if k.Nu > 0 {
			scr.cdBK.Mul(beff, sf.K)
			scr.cdAPlusBK.Add(scr.cdAPlusBK, scr.cdBK)
		}
		sf.Kdyn.Mul(p, scr.cdAPlusBK)

		// kdyn = P_{t+1}(Beff k + feff) + p_{t+1}
		for i := 0; i < k.Nx; i++ {
			scr.cdBkPlusF.SetVec(i, feff[i])
		}
		if k.Nu > 0 {
			scr.cdBkVec.MulVec(beff, mat.NewVecDense(k.Nu, sf.k))
			scr.cdBkPlusF.AddVec(scr.cdBkPlusF, scr.cdBkVec)
		}
		scr.cdPbkf.MulVec(p, scr.cdBkPlusF)
		for i := 0; i < k.Nx; i++ {
			sf.kdyn[i] = scr.cdPbkf.AtVec(i) + pVecEff[i]
		}

		if k.Nth > 0 {
			// Kdynth = P_{t+1} Beff Kth + Vxt_{t+1}
			if k.Nu > 0 {
				scr.cdBKth.Mul(beff, sf.Kth)
				sf.Kdynth.Mul(p, scr.cdBKth)
			} else {
				sf.Kdynth.Zero()
			}
			sf.Kdynth.Add(sf.Kdynth, next.VM.Vxt)
		}
	}

	if k.Nc > 0 {
		invMu := 1.0 / mueq
		// Kv = (1/mueq)(C + D K)
		sf.Kv.Copy(k.C)
		if k.Nu > 0 {
			scr.cdDK.Mul(k.D, sf.K)
			sf.Kv.Add(sf.Kv, scr.cdDK)
		}
		sf.Kv.Scale(invMu, sf.Kv)

		// kv = (1/mueq)(D k + d)
		copy(scr.cdDvec.RawVector().Data, k.DVec())
		if k.Nu > 0 {
			scr.cdDkVec.MulVec(k.D, mat.NewVecDense(k.Nu, sf.k))
			scr.cdDvec.AddVec(scr.cdDvec, scr.cdDkVec)
		}
		for i := 0; i < k.Nc; i++ {
			sf.kv[i] = invMu * scr.cdDvec.AtVec(i)
		}

		if k.Nth > 0 && k.Nu > 0 {
			// Kvth = (1/mueq) D Kth
			sf.Kvth.Mul(k.D, sf.Kth)
			sf.Kvth.Scale(invMu, sf.Kvth)
		}
	}
}

// addConstraintHamiltonian adds the AL penalty contribution
// (1/mueq) [C D]'[C D] and (1/mueq) [C D]'d of the path constraint block.
func addConstraintHamiltonian(k *lqr.Knot, mueq float64, scr *scratch) {
	invMu := 1.0 / mueq
	scr.acCtC.Mul(k.C.T(), k.C)
	scr.acCtC.Scale(invMu, scr.acCtC)
	scr.hxx.Add(scr.hxx, scr.acCtC)
	if k.Nu > 0 {
		scr.acDtD.Mul(k.D.T(), k.D)
		scr.acDtD.Scale(invMu, scr.acDtD)
		scr.huu.Add(scr.huu, scr.acDtD)
		scr.acDtC.Mul(k.D.T(), k.C)
		scr.acDtC.Scale(invMu, scr.acDtC)
		scr.hux.Add(scr.hux, scr.acDtC)
	}

	dvec := mat.NewVecDense(k.Nc, k.DVec())
	scr.acCtd.MulVec(k.C.T(), dvec)
	for i := range scr.hx {
		scr.hx[i] += invMu * scr.acCtd.AtVec(i)
	}
	if k.Nu > 0 {
		scr.acDtd.MulVec(k.D.T(), dvec)
		for i := range scr.hu {
			scr.hu[i] += invMu * scr.acDtd.AtVec(i)
		}
	}
}

// addDynamicsHamiltonian folds in the within-leg elimination of the next
// state via the next knot's value function.
func addDynamicsHamiltonian(aeff, beff *mat.Dense, feff []float64, pEff *mat.Dense, pVecEff []float64, next *StageFactor,
	hxx, huu, hux *mat.Dense, hx, hu []float64, hxt, hut, htt *mat.Dense, ht []float64, scr *scratch) {

	p := pEff
	scr.adPaEff.Mul(p, aeff)
	hasU := huu.RawMatrix().Rows > 0

	scr.adATpa.Mul(aeff.T(), scr.adPaEff)
	hxx.Add(hxx, scr.adATpa)

	if hasU {
		scr.adPbEff.Mul(p, beff)
		scr.adBTpb.Mul(beff.T(), scr.adPbEff)
		huu.Add(huu, scr.adBTpb)
		scr.adBTpa.Mul(beff.T(), scr.adPaEff)
		hux.Add(hux, scr.adBTpa)
	}

	scr.adPf.MulVec(p, mat.NewVecDense(len(feff), feff))
	scr.adPfv.AddVec(scr.adPf, mat.NewVecDense(len(pVecEff), pVecEff))

	scr.adATpf.MulVec(aeff.T(), scr.adPfv)
	for i := range hx {
		hx[i] += scr.adATpf.AtVec(i)
	}
	if hasU {
		scr.adBTpf.MulVec(beff.T(), scr.adPfv)
		for i := range hu {
			hu[i] += scr.adBTpf.AtVec(i)
		}
	}

	if next.Nth > 0 && hxt != nil {
		scr.adATvxt.Mul(aeff.T(), next.VM.Vxt)
		hxt.Add(hxt, scr.adATvxt)
		if hasU {
			scr.adBTvxt.Mul(beff.T(), next.VM.Vxt)
			hut.Add(hut, scr.adBTvxt)
		}
		htt.Add(htt, next.VM.Vtt)

		scr.adVxtTfeff.MulVec(next.VM.Vxt.T(), mat.NewVecDense(len(feff), feff))
		for i := range ht {
			ht[i] += next.VM.Vt[i] + scr.adVxtTfeff.AtVec(i)
		}
	}
}

// addLinkHamiltonian folds in a leg-boundary knot's direct linear
// coupling to the gluing parameter theta via (Gx x + Gu u + gamma)'theta.
func addLinkHamiltonian(k *lqr.Knot, hxt, hut *mat.Dense, ht []float64) {
	hxt.Add(hxt, k.Gx.T())
	if k.Nu > 0 {
		hut.Add(hut, k.Gu.T())
	}
	for i := range ht {
		ht[i] += k.GammaVec()[i]
	}
}

// eliminateControl solves the condensed (u,u) block for the control
// feedback/feedforward and propagates the eliminated value function into
// sf. Returns false if huu fails to factor as SPD.
func eliminateControl(nx, nu, nth int, hxx, huu, hux *mat.Dense, hx, hu []float64,
	hxt, hut, htt *mat.Dense, ht []float64, sf *StageFactor, refine RefineOption) bool {

	if nu == 0 {
		sf.VM.Pmat.Copy(hxx)
		copy(sf.VM.Pvec, hx)
		if nth > 0 {
			sf.VM.Vxt.Copy(hxt)
			sf.VM.Vtt.Copy(htt)
			copy(sf.VM.Vt, ht)
		}
		return true
	}

	scr := sf.scr
	symmetrizeInto(scr.symOut, huu)
	if ok := sf.chol.Factorize(mat.NewSymDense(nu, scr.symOut.RawMatrix().Data)); !ok {
		return false
	}

	scr.ecNegHux.Scale(-1, hux)
	if err := sf.chol.SolveTo(sf.K, scr.ecNegHux); err != nil {
		return false
	}
	refineDenseSolve(&sf.chol, huu, scr.ecNegHux, sf.K, refine, scr)

	huVec := mat.NewVecDense(nu, hu)
	scr.ecNegHu.ScaleVec(-1, huVec)
	if err := sf.chol.SolveVecTo(scr.ecKvec, scr.ecNegHu); err != nil {
		return false
	}
	refineVecSolve(&sf.chol, huu, scr.ecNegHu, scr.ecKvec, refine, scr)
	for i := 0; i < nu; i++ {
		sf.k[i] = scr.ecKvec.AtVec(i)
	}

	if nth > 0 {
		scr.ecNegHut.Scale(-1, hut)
		if err := sf.chol.SolveTo(sf.Kth, scr.ecNegHut); err != nil {
			return false
		}
	}

	// P = Hxx - Hux' Huu^-1 Hux = Hxx + Hux' K
	scr.ecHuxTk.Mul(hux.T(), sf.K)
	sf.VM.Pmat.Copy(hxx)
	sf.VM.Pmat.Add(sf.VM.Pmat, scr.ecHuxTk)

	// p = hx - Hux' Huu^-1 hu = hx + Hux' k
	scr.ecHuxTkVec.MulVec(hux.T(), scr.ecKvec)
	for i := 0; i < nx; i++ {
		sf.VM.Pvec[i] = hx[i] + scr.ecHuxTkVec.AtVec(i)
	}

	if nth > 0 {
		scr.ecHuxTkth.Mul(hux.T(), sf.Kth)
		sf.VM.Vxt.Copy(hxt)
		sf.VM.Vxt.Add(sf.VM.Vxt, scr.ecHuxTkth)

		scr.ecHutTkth.Mul(hut.T(), sf.Kth)
		sf.VM.Vtt.Copy(htt)
		sf.VM.Vtt.Add(sf.VM.Vtt, scr.ecHutTkth)

		scr.ecHutTkVec.MulVec(hut.T(), scr.ecKvec)
		for i := 0; i < nth; i++ {
			sf.VM.Vt[i] = ht[i] + scr.ecHutTkVec.AtVec(i)
		}
	}

	return true
}

// refineDenseSolve improves a matrix solve x of huu*x = rhs in place by
// recomputing the residual against the original huu and re-solving for
// the correction with the already-factored chol, up to refine.MaxSteps
// times or until the residual's infinity norm is under refine.Threshold.
// refine.MaxSteps <= 0 is a no-op. Scratch for the residual and the
// correction comes from scr, never freshly allocated.
func refineDenseSolve(chol *mat.Cholesky, huu, rhs, x *mat.Dense, refine RefineOption, scr *scratch) {
	if refine.MaxSteps <= 0 {
		return
	}
	for i := 0; i < refine.MaxSteps; i++ {
		scr.rfAx.Mul(huu, x)
		scr.rfResid.Sub(rhs, scr.rfAx)
		if denseInfNorm(scr.rfResid) <= refine.Threshold {
			return
		}
		if err := chol.SolveTo(scr.rfCorr, scr.rfResid); err != nil {
			return
		}
		x.Add(x, scr.rfCorr)
	}
}

// refineVecSolve is refineDenseSolve's vector counterpart for the
// feedforward term k.
func refineVecSolve(chol *mat.Cholesky, huu *mat.Dense, rhs, x *mat.VecDense, refine RefineOption, scr *scratch) {
	if refine.MaxSteps <= 0 {
		return
	}
	for i := 0; i < refine.MaxSteps; i++ {
		scr.rfVAx.MulVec(huu, x)
		scr.rfVResid.SubVec(rhs, scr.rfVAx)
		if vecInfNorm(scr.rfVResid) <= refine.Threshold {
			return
		}
		if err := chol.SolveVecTo(scr.rfVCorr, scr.rfVResid); err != nil {
			return
		}
		x.AddVec(x, scr.rfVCorr)
	}
}

func denseInfNorm(m *mat.Dense) float64 {
	r, c := m.Dims()
	best := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a := math.Abs(m.At(i, j)); a > best {
				best = a
			}
		}
	}
	return best
}

func vecInfNorm(v *mat.VecDense) float64 {
	best := 0.0
	for i := 0; i < v.Len(); i++ {
		if a := math.Abs(v.AtVec(i)); a > best {
			best = a
		}
	}
	return best
}

// symmetrizeInto writes 0.5*(m + m') into dst, which must already have
// m's Dims.
func symmetrizeInto(dst, m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
}

// symmetrize is symmetrizeInto's allocating counterpart, used only by
// tests that build their own reference Cholesky solve outside of a
// StageFactor's scratch.
func symmetrize(m *mat.Dense) *mat.Dense {
	out := mat.NewDense(m.RawMatrix().Rows, m.RawMatrix().Cols, nil)
	symmetrizeInto(out, m)
	return out
}
