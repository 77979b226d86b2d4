// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"math/rand"
	"testing"
)

// naiveMulByXai is the reference negacyclic monomial product for small
// test polynomials.
func naiveMulByXai(in []Torus32, a int) []Torus32 {
	n := len(in)
	out := make([]Torus32, n)
	for j := 0; j < n; j++ {
		pos := (j + a) % (2 * n)
		if pos < n {
			out[pos] += in[j]
		} else {
			out[pos-n] -= in[j]
		}
	}
	return out
}

func TestTorusPolyMulByXai(t *testing.T) {
	const n = 16
	rng := rand.New(rand.NewSource(5))
	in := make([]Torus32, n)
	for i := range in {
		in[i] = Torus32(rng.Uint32())
	}

	out := make([]Torus32, n)
	for a := 0; a < 2*n; a++ {
		torusPolyMulByXai(out, in, a)
		want := naiveMulByXai(in, a)
		for i := range out {
			if out[i] != want[i] {
				t.Fatalf("a=%d: coefficient %d: got %#x, want %#x", a, i, out[i], want[i])
			}
		}
	}
}

func TestTorusPolyMulByXaiMinusOne(t *testing.T) {
	const n = 16
	rng := rand.New(rand.NewSource(6))
	in := make([]Torus32, n)
	for i := range in {
		in[i] = Torus32(rng.Uint32())
	}

	out := make([]Torus32, n)
	for a := 0; a < 2*n; a++ {
		torusPolyMulByXaiMinusOne(out, in, a)
		rotated := naiveMulByXai(in, a)
		for i := range out {
			if want := rotated[i] - in[i]; out[i] != want {
				t.Fatalf("a=%d: coefficient %d: got %#x, want %#x", a, i, out[i], want)
			}
		}
	}
}

// TestGadgetDecomposeApproximates checks the two decomposition
// invariants: digits stay within the signed base range, and the
// weighted recomposition approximates the input to the documented
// truncation error.
func TestGadgetDecomposeApproximates(t *testing.T) {
	const (
		n       = 32
		baseLog = 10
		l       = 2
	)
	rng := rand.New(rand.NewSource(9))
	p := make([]Torus32, n)
	for i := range p {
		p[i] = Torus32(rng.Uint32())
	}

	digits := make([]int32, l*n)
	gadgetDecompose(digits, p, baseLog, l)

	halfBase := int32(1) << (baseLog - 1)
	for i, d := range digits {
		if d < -halfBase || d >= halfBase {
			t.Fatalf("digit %d out of range: %d", i, d)
		}
	}

	// Recompose sum d_j * 2^(32 - j*baseLog) and compare to the input.
	// The rounded tail keeps the error within +-2^(32 - l*baseLog - 1),
	// centered around zero rather than one-sided.
	maxErr := int64(1) << (32 - l*baseLog - 1)
	var sawNeg, sawPos bool
	for i := 0; i < n; i++ {
		var recon int64
		for j := 0; j < l; j++ {
			recon += int64(digits[j*n+i]) << (32 - (j+1)*baseLog)
		}
		// Compare on the torus: difference is taken mod 2^32.
		diff := int64(int32(p[i] - Torus32(recon)))
		switch {
		case diff < 0:
			sawNeg = true
		case diff > 0:
			sawPos = true
		}
		if diff < 0 {
			diff = -diff
		}
		if diff > maxErr {
			t.Fatalf("coefficient %d: reconstruction error %d exceeds %d", i, diff, maxErr)
		}
	}
	if !sawNeg || !sawPos {
		t.Errorf("reconstruction errors are one-sided (neg=%v, pos=%v)", sawNeg, sawPos)
	}
}

// TestGadgetDecomposeExactCoverage covers the degenerate full-precision
// decomposition where no tail is discarded.
func TestGadgetDecomposeExactCoverage(t *testing.T) {
	const (
		n       = 8
		baseLog = 16
		l       = 2
	)
	rng := rand.New(rand.NewSource(11))
	p := make([]Torus32, n)
	for i := range p {
		p[i] = Torus32(rng.Uint32())
	}

	digits := make([]int32, l*n)
	gadgetDecompose(digits, p, baseLog, l)

	for i := 0; i < n; i++ {
		var recon int64
		for j := 0; j < l; j++ {
			recon += int64(digits[j*n+i]) << (32 - (j+1)*baseLog)
		}
		if Torus32(recon) != p[i] {
			t.Fatalf("coefficient %d: got %#x, want %#x", i, Torus32(recon), p[i])
		}
	}
}

func TestModSwitch(t *testing.T) {
	const space = 1024
	cases := []struct {
		phase Torus32
		want  int
	}{
		{0, 0},
		{1 << 22, 1},          // 2^22 = one step of 2^32/1024
		{encodingMu, space / 8},
		{encodingMuNeg, space - space/8},
	}
	for _, tc := range cases {
		if got := modSwitchFromTorus32(tc.phase, space); got != tc.want {
			t.Errorf("modSwitch(%#x, %d) = %d, want %d", tc.phase, space, got, tc.want)
		}
	}
}
