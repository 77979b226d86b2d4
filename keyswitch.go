// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

// keySwitchInto reduces an extracted dimension-k*N sample (extA, extB)
// to the standard dimension n under the LWE secret, writing the mask
// into destA and returning the body. Each extracted mask coefficient is
// decomposed into t rounded digits; each digit subtracts the matching
// key-switching-key sample weighted by the digit value. The plaintext
// is preserved; noise grows by a bounded, parameter-determined amount.
func (e *Evaluator) keySwitchInto(destA []Torus32, extA []Torus32, extB Torus32) Torus32 {
	p := e.params
	t := p.KeySwitchLength()
	baseLog := p.KeySwitchBaseLog()
	base := Torus32(1) << baseLog
	mask := base - 1

	// Rounding offset for the bits below the decomposition precision.
	precOffset := Torus32(1) << (32 - (1 + baseLog*t))

	clearTorus(destA)
	body := extB

	for i, ai := range extA {
		c := ai + precOffset
		for j := 0; j < t; j++ {
			digit := (c >> (32 - (j+1)*baseLog)) & mask
			if digit == 0 {
				continue
			}
			ksA, ksB := e.ck.ksRow(i, j)
			for u := range destA {
				destA[u] -= digit * ksA[u]
			}
			body -= digit * ksB
		}
	}
	return body
}
