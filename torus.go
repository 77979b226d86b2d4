// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import "math"

// Torus32 is an element of the discretized torus T = R/Z, represented as
// a 32-bit fixed-point fraction: the value t corresponds to t / 2^32.
// Addition and negation wrap naturally; there is no multiplication of two
// torus elements, only integer-by-torus products.
type Torus32 uint32

// Encoding of a boolean plaintext: true is +1/8, false is -1/8. Gates
// pre-combine inputs so that the bootstrapping test vector separates the
// resulting phases at +-1/4.
const encodingMu Torus32 = 1 << 29 // 1/8

// DoubleToTorus32 maps a real value (mod 1) to the discretized torus.
func DoubleToTorus32(d float64) Torus32 {
	_, frac := math.Modf(d)
	return Torus32(int64(math.Round(frac * 4294967296.0)))
}

// TorusToDouble maps a torus element to its centered real representative
// in [-1/2, 1/2).
func TorusToDouble(t Torus32) float64 {
	return float64(int32(t)) / 4294967296.0
}

// modSwitchFromTorus32 rounds a torus element to the nearest multiple of
// 1/space and returns the multiplier in [0, space). space must be a
// power of two not exceeding 2^31.
func modSwitchFromTorus32(phase Torus32, space int) int {
	return int((uint64(phase)*uint64(space) + (1 << 31)) >> 32)
}

// boolToMu returns the torus encoding of a plaintext bit.
func boolToMu(bit bool) Torus32 {
	if bit {
		return encodingMu
	}
	return encodingMuNeg
}

// muToBool decodes a phase to the nearer encoding point.
func muToBool(phase Torus32) bool {
	return int32(phase) > 0
}
