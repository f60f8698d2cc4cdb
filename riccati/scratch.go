package riccati

import "gonum.org/v1/gonum/mat"

// scratch holds every intermediate matrix and vector the backward sweep
// needs for one knot, preallocated once by NewStageFactor and reused on
// every Backward call. Every field keeps the Dims it was constructed
// with for the lifetime of the StageFactor, so writing into it through
// Mul, Add, Copy or Scale reuses its backing array instead of
// reallocating.
type scratch struct {
	hxx, huu, hux *mat.Dense
	hx, hu        []float64
	hxt, hut, htt *mat.Dense
	ht            []float64

	edNegA, edNegB  *mat.Dense
	edNegF, edFeffV *mat.VecDense
	aeff, beff      *mat.Dense
	feff            []float64

	rvIPlusMuP  *mat.Dense
	rvPvecTilde *mat.VecDense
	pEff        *mat.Dense
	pVecEff     []float64

	acCtC, acDtD, acDtC  *mat.Dense
	acCtd, acDtd         *mat.VecDense

	adPaEff, adPbEff       *mat.Dense
	adATpa, adBTpb, adBTpa *mat.Dense
	adPf, adPfv            *mat.VecDense
	adATpf, adBTpf         *mat.VecDense
	adATvxt, adBTvxt       *mat.Dense
	adVxtTfeff             *mat.VecDense

	ecNegHux, ecNegHut             *mat.Dense
	ecHuxTk, ecHuxTkth, ecHutTkth  *mat.Dense
	ecHuxTkVec, ecHutTkVec, ecKvec *mat.VecDense
	ecNegHu                        *mat.VecDense

	rfAx, rfResid, rfCorr    *mat.Dense
	rfVAx, rfVResid, rfVCorr *mat.VecDense

	symOut *mat.Dense

	cdAPlusBK, cdBK, cdBKth, cdDK *mat.Dense
	cdBkPlusF, cdBkVec, cdPbkf    *mat.VecDense
	cdDvec, cdDkVec               *mat.VecDense
}

func newScratch(nx, nu, nc, nth int) *scratch {
	nc = max0(nc)
	return &scratch{
		hxx: mat.NewDense(nx, nx, nil),
		huu: mat.NewDense(nu, nu, nil),
		hux: mat.NewDense(nu, nx, nil),
		hx:  make([]float64, nx),
		hu:  make([]float64, nu),
		hxt: mat.NewDense(nx, nth, nil),
		hut: mat.NewDense(nu, nth, nil),
		htt: mat.NewDense(nth, nth, nil),
		ht:  make([]float64, nth),

		edNegA:  mat.NewDense(nx, nx, nil),
		edNegB:  mat.NewDense(nx, nu, nil),
		edNegF:  mat.NewVecDense(nx, nil),
		edFeffV: mat.NewVecDense(nx, nil),
		aeff:    mat.NewDense(nx, nx, nil),
		beff:    mat.NewDense(nx, nu, nil),
		feff:    make([]float64, nx),

		rvIPlusMuP:  mat.NewDense(nx, nx, nil),
		rvPvecTilde: mat.NewVecDense(nx, nil),
		pEff:        mat.NewDense(nx, nx, nil),
		pVecEff:     make([]float64, nx),

		acCtC: mat.NewDense(nx, nx, nil),
		acDtD: mat.NewDense(nu, nu, nil),
		acDtC: mat.NewDense(nu, nx, nil),
		acCtd: mat.NewVecDense(nx, nil),
		acDtd: mat.NewVecDense(nu, nil),

		adPaEff:    mat.NewDense(nx, nx, nil),
		adPbEff:    mat.NewDense(nx, nu, nil),
		adATpa:     mat.NewDense(nx, nx, nil),
		adBTpb:     mat.NewDense(nu, nu, nil),
		adBTpa:     mat.NewDense(nu, nx, nil),
		adPf:       mat.NewVecDense(nx, nil),
		adPfv:      mat.NewVecDense(nx, nil),
		adATpf:     mat.NewVecDense(nx, nil),
		adBTpf:     mat.NewVecDense(nu, nil),
		adATvxt:    mat.NewDense(nx, nth, nil),
		adBTvxt:    mat.NewDense(nu, nth, nil),
		adVxtTfeff: mat.NewVecDense(nth, nil),

		ecNegHux:   mat.NewDense(nu, nx, nil),
		ecNegHut:   mat.NewDense(nu, nth, nil),
		ecHuxTk:    mat.NewDense(nx, nx, nil),
		ecHuxTkth:  mat.NewDense(nx, nth, nil),
		ecHutTkth:  mat.NewDense(nth, nth, nil),
		ecHuxTkVec: mat.NewVecDense(nx, nil),
		ecHutTkVec: mat.NewVecDense(nth, nil),
		ecKvec:     mat.NewVecDense(nu, nil),
		ecNegHu:    mat.NewVecDense(nu, nil),

		rfAx:     mat.NewDense(nu, nx, nil),
		rfResid:  mat.NewDense(nu, nx, nil),
		rfCorr:   mat.NewDense(nu, nx, nil),
		rfVAx:    mat.NewVecDense(nu, nil),
		rfVResid: mat.NewVecDense(nu, nil),
		rfVCorr:  mat.NewVecDense(nu, nil),

		symOut: mat.NewDense(nu, nu, nil),

		cdAPlusBK: mat.NewDense(nx, nx, nil),
		cdBK:      mat.NewDense(nx, nx, nil),
		cdBKth:    mat.NewDense(nx, nth, nil),
		cdDK:      mat.NewDense(nc, nx, nil),
		cdBkPlusF: mat.NewVecDense(nx, nil),
		cdBkVec:   mat.NewVecDense(nx, nil),
		cdPbkf:    mat.NewVecDense(nx, nil),
		cdDvec:    mat.NewVecDense(nc, nil),
		cdDkVec:   mat.NewVecDense(nc, nil),
	}
}
