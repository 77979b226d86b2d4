// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

// Torus polynomial helpers over Z[X]/(X^N + 1). Rotations by powers of X
// are index shifts with sign flips on wraparound; they never touch the
// transform engine.

// torusPolyMulByXai computes out = in * X^a in the negacyclic ring,
// for a in [0, 2N). out and in must not alias.
func torusPolyMulByXai(out, in []Torus32, a int) {
	n := len(in)
	if a < n {
		for j := 0; j < a; j++ {
			out[j] = -in[j-a+n]
		}
		for j := a; j < n; j++ {
			out[j] = in[j-a]
		}
		return
	}
	aa := a - n
	for j := 0; j < aa; j++ {
		out[j] = in[j-aa+n]
	}
	for j := aa; j < n; j++ {
		out[j] = -in[j-aa]
	}
}

// torusPolyMulByXaiMinusOne computes out = in * (X^a - 1), the rotation
// difference consumed by the external product. out and in must not alias.
func torusPolyMulByXaiMinusOne(out, in []Torus32, a int) {
	n := len(in)
	if a < n {
		for j := 0; j < a; j++ {
			out[j] = -in[j-a+n] - in[j]
		}
		for j := a; j < n; j++ {
			out[j] = in[j-a] - in[j]
		}
		return
	}
	aa := a - n
	for j := 0; j < aa; j++ {
		out[j] = in[j-aa+n] - in[j]
	}
	for j := aa; j < n; j++ {
		out[j] = -in[j-aa] - in[j]
	}
}

// torusPolyAddInto accumulates acc += p coefficientwise.
func torusPolyAddInto(acc, p []Torus32) {
	for i := range acc {
		acc[i] += p[i]
	}
}

// gadgetDecompose performs the signed gadget decomposition of a torus
// polynomial into l digit polynomials of base 2^baseLog, digits centered
// in [-Bg/2, Bg/2). digits must hold l*N int32 values, digit-major.
func gadgetDecompose(digits []int32, p []Torus32, baseLog, l int) {
	n := len(p)
	halfBase := int32(1) << (baseLog - 1)
	mask := Torus32(1)<<baseLog - 1

	// Rounding offset: Bg/2 at every level centers the digits, and half
	// of the first discarded bit rounds the tail, so the reconstruction
	// error is centered in +-2^(32-l*baseLog-1) instead of one-sided.
	var offset Torus32
	for j := 1; j <= l; j++ {
		offset += Torus32(halfBase) << (32 - j*baseLog)
	}
	if tail := 32 - l*baseLog; tail > 0 {
		offset += Torus32(1) << (tail - 1)
	}

	for i := 0; i < n; i++ {
		c := p[i] + offset
		for j := 0; j < l; j++ {
			digit := int32((c>>(32-(j+1)*baseLog))&mask) - halfBase
			digits[j*n+i] = digit
		}
	}
}
