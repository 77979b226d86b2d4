// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"github.com/luxfi/tfhe/compute"
)

// Blind rotation. The accumulator starts as the trivial TLWE sample of
// the test polynomial rotated by the mod-switched body; every LWE mask
// coefficient then rotates it homomorphically by an external product
// with the TRGSW encryption of the matching secret bit. Extracting the
// constant coefficient of the final accumulator yields a dimension-k*N
// sample of the gate output with fresh, input-independent noise.

// bootstrapScratch is the per-worker buffer set for one in-flight
// bootstrap. Buffers are recycled through the evaluator's pool; nothing
// here escapes a single sample's computation.
type bootstrapScratch struct {
	acc    *tlweSample // accumulator, (k+1) polynomials
	diff   []Torus32   // rotation difference, one polynomial
	digits []int32     // gadget digits of one polynomial, l*N
	fpoly  []uint64    // transform workspace, one polynomial
	fAcc   []uint64    // field-domain accumulator, (k+1)*N
	delta  []Torus32   // inverse-transformed update, (k+1)*N

	extA  []Torus32 // extracted mask, k*N
	extA2 []Torus32 // second extracted mask (MUX)

	lweA []Torus32 // linear-combination mask, n
}

func newBootstrapScratch(p Parameters) *bootstrapScratch {
	n := p.PolyDegree()
	k := p.MaskCount()
	return &bootstrapScratch{
		acc:    newTlweSample(k, n),
		diff:   make([]Torus32, n),
		digits: make([]int32, p.BootstrapLength()*n),
		fpoly:  make([]uint64, n),
		fAcc:   make([]uint64, (k+1)*n),
		delta:  make([]Torus32, (k+1)*n),
		extA:   make([]Torus32, p.ExtractedDimension()),
		extA2:  make([]Torus32, p.ExtractedDimension()),
		lweA:   make([]Torus32, p.LweDimension()),
	}
}

// blindRotateExtract bootstraps one LWE sample (a, b): it selects
// +-1/8 by the sign of the sample's phase and returns the extracted
// dimension-k*N sample in (extA, body). The input noise level does not
// influence the output noise as long as it stayed below the
// bootstrapping input bound.
func (e *Evaluator) blindRotateExtract(a []Torus32, b Torus32, extA []Torus32, s *bootstrapScratch) Torus32 {
	p := e.params
	n := p.PolyDegree()
	k := p.MaskCount()
	space := 2 * n

	// Accumulator init: trivial sample of testVector * X^-barb.
	barb := modSwitchFromTorus32(b, space)
	acc := s.acc
	for u := 0; u < k; u++ {
		clearTorus(acc.poly(u))
	}
	if barb == 0 {
		copy(acc.poly(k), e.testVector)
	} else {
		torusPolyMulByXai(acc.poly(k), e.testVector, space-barb)
	}

	for i := 0; i < p.LweDimension(); i++ {
		bara := modSwitchFromTorus32(a[i], space)
		if bara == 0 {
			continue
		}
		e.externalProductAccumulate(acc, e.ck.bk[i], bara, s)
	}

	return acc.extractLweSample(extA)
}

// externalProductAccumulate computes acc += bk ⊡ ((X^bara - 1) * acc):
// the gadget decomposition of the rotation difference is transformed,
// multiplied against the transform-domain TRGSW rows, and the inverse
// transform of the row sums is added back onto the accumulator.
func (e *Evaluator) externalProductAccumulate(acc *tlweSample, bk *transformedTrgsw, bara int, s *bootstrapScratch) {
	p := e.params
	n := p.PolyDegree()
	k := p.MaskCount()
	l := p.BootstrapLength()
	baseLog := p.BootstrapBaseLog()

	clearField(s.fAcc)

	for w := 0; w <= k; w++ {
		torusPolyMulByXaiMinusOne(s.diff, acc.poly(w), bara)
		gadgetDecompose(s.digits, s.diff, baseLog, l)

		for j := 0; j < l; j++ {
			compute.LiftSigned(s.digits[j*n:(j+1)*n], s.fpoly)
			e.tr.Forward(s.fpoly)
			row := w*l + j
			for u := 0; u <= k; u++ {
				e.tr.MulAccumulate(s.fpoly, bk.rowPoly(row, u), s.fAcc[u*n:(u+1)*n])
			}
		}
	}

	// With a transform batch configured, the (k+1) inverse transforms
	// go to the device as one dispatch; otherwise they run inline on
	// the worker already holding this sample.
	if e.perf.transformBatch > 1 {
		e.tr.InverseBatch(e.dev, s.fAcc)
	} else {
		for u := 0; u <= k; u++ {
			e.tr.Inverse(s.fAcc[u*n : (u+1)*n])
		}
	}
	compute.UnliftTorus(s.fAcc, s.delta)
	torusPolyAddInto(acc.data, s.delta)
}

func clearTorus(p []Torus32) {
	for i := range p {
		p[i] = 0
	}
}

func clearField(p []uint64) {
	for i := range p {
		p[i] = 0
	}
}
