// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

// transformedTrgsw is a TRGSW sample held in the transform domain, the
// form consumed by the external product. Rows are the (k+1)*l gadget
// rows; each row is a TLWE sample whose (k+1) polynomials are stored as
// N field coefficients. Layout: row r, polynomial u at
// data[(r*(k+1)+u)*N : ...+N].
//
// The bootstrapping key transforms every row once at key generation, so
// blind rotation pays only for the accumulator-side transforms.
type transformedTrgsw struct {
	k    int
	l    int
	n    int // polynomial degree
	data []uint64
}

func newTransformedTrgsw(k, l, degree int) *transformedTrgsw {
	return &transformedTrgsw{
		k:    k,
		l:    l,
		n:    degree,
		data: make([]uint64, (k+1)*l*(k+1)*degree),
	}
}

// rowPoly returns polynomial u of gadget row r in the transform domain.
func (t *transformedTrgsw) rowPoly(r, u int) []uint64 {
	off := (r*(t.k+1) + u) * t.n
	return t.data[off : off+t.n]
}
