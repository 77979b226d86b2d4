// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"
	"math/bits"
)

// Modulus is the transform field modulus P = 2^64 - 2^32 + 1.
//
// P - 1 = 2^32 * (2^32 - 1), so primitive 2N-th roots of unity exist for
// every power-of-two N up to 2^31, and 32-bit torus coefficients lift into
// the field without reduction. All transform arithmetic is exact: a
// negacyclic product of an integer polynomial with digit coefficients in
// [-2^b, 2^b] and a torus polynomial stays below P/2 in absolute value for
// every parameter set this engine accepts, so coefficients recovered from
// the field equal the true integer convolution reduced mod 2^32.
const Modulus uint64 = 0xFFFFFFFF00000001

// generator is a fixed generator of the multiplicative group of the field.
const generator uint64 = 7

// ErrNotPowerOfTwo reports a transform size that cannot be processed.
type ErrNotPowerOfTwo struct{ N int }

func (e ErrNotPowerOfTwo) Error() string {
	return fmt.Sprintf("compute: transform size %d is not a power of two", e.N)
}

// Transformer computes exact forward/inverse negacyclic transforms of a
// fixed degree N. The 2N-th root psi is merged into the butterfly
// twiddles (stored in bit-reversed order), so Forward/Inverse need no
// separate pre/post twisting and no bit-reversal pass. A Transformer is
// immutable after construction and safe for concurrent use; the in-place
// transform buffers are owned by the caller.
type Transformer struct {
	n       int
	logN    int
	psiRev  []uint64 // psi^bitrev(i), i in [0, N)
	ipsiRev []uint64 // psi^-bitrev(i), i in [0, N)
	nInv    uint64   // N^-1 mod P
}

// NewTransformer creates a transformer for degree-N negacyclic products.
// N must be a power of two; this is a configuration error raised once at
// setup, never per call.
func NewTransformer(n int) (*Transformer, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, ErrNotPowerOfTwo{N: n}
	}
	if uint64(2*n) > 1<<32 {
		return nil, fmt.Errorf("compute: transform size %d exceeds the field's power-of-two root order", n)
	}

	logN := bits.TrailingZeros(uint(n))

	// psi is a primitive 2N-th root of unity: generator^((P-1)/2N).
	psi := powMod(generator, (Modulus-1)/uint64(2*n))
	psiInv := powMod(psi, Modulus-2)

	t := &Transformer{
		n:       n,
		logN:    logN,
		psiRev:  make([]uint64, n),
		ipsiRev: make([]uint64, n),
		nInv:    powMod(uint64(n), Modulus-2),
	}

	fwd, inv := uint64(1), uint64(1)
	for i := 0; i < n; i++ {
		r := int(bits.Reverse32(uint32(i)) >> (32 - logN))
		t.psiRev[r] = fwd
		t.ipsiRev[r] = inv
		fwd = mulMod(fwd, psi)
		inv = mulMod(inv, psiInv)
	}

	return t, nil
}

// N returns the transform degree.
func (t *Transformer) N() int { return t.n }

// Forward computes the in-place negacyclic NTT of p (length N, standard
// coefficient order in, bit-reversed transform order out).
func (t *Transformer) Forward(p []uint64) {
	n := t.n
	for m, step := 1, n>>1; m < n; m, step = m<<1, step>>1 {
		for i := 0; i < m; i++ {
			s := t.psiRev[m+i]
			j1 := 2 * i * step
			for j := j1; j < j1+step; j++ {
				u := p[j]
				v := mulMod(p[j+step], s)
				p[j] = addMod(u, v)
				p[j+step] = subMod(u, v)
			}
		}
	}
}

// Inverse computes the in-place inverse transform, returning standard
// coefficient order, normalized by N^-1.
func (t *Transformer) Inverse(p []uint64) {
	n := t.n
	for m, step := n>>1, 1; m >= 1; m, step = m>>1, step<<1 {
		j1 := 0
		for i := 0; i < m; i++ {
			s := t.ipsiRev[m+i]
			for j := j1; j < j1+step; j++ {
				u := p[j]
				v := p[j+step]
				p[j] = addMod(u, v)
				p[j+step] = mulMod(subMod(u, v), s)
			}
			j1 += 2 * step
		}
	}
	for i := range p {
		p[i] = mulMod(p[i], t.nInv)
	}
}

// MulAccumulate performs a pointwise multiply-accumulate of two transformed
// polynomials: acc[i] += a[i]*b[i] mod P.
func (t *Transformer) MulAccumulate(a, b, acc []uint64) {
	for i := 0; i < t.n; i++ {
		acc[i] = addMod(acc[i], mulMod(a[i], b[i]))
	}
}

// Pointwise multiplies two transformed polynomials into out.
func (t *Transformer) Pointwise(a, b, out []uint64) {
	for i := 0; i < t.n; i++ {
		out[i] = mulMod(a[i], b[i])
	}
}

// ForwardBatch transforms a batch of polynomials (each length N) laid out
// contiguously in buf, dispatching across the device.
func (t *Transformer) ForwardBatch(dev Device, buf []uint64) {
	n := t.n
	dev.Run(len(buf)/n, func(i int) {
		t.Forward(buf[i*n : (i+1)*n])
	})
}

// InverseBatch applies the inverse transform to a contiguous batch.
func (t *Transformer) InverseBatch(dev Device, buf []uint64) {
	n := t.n
	dev.Run(len(buf)/n, func(i int) {
		t.Inverse(buf[i*n : (i+1)*n])
	})
}

// LiftTorus lifts 32-bit torus coefficients into the field.
func LiftTorus[T ~uint32](src []T, dst []uint64) {
	for i, c := range src {
		dst[i] = uint64(c)
	}
}

// LiftSigned lifts signed digit coefficients into the field.
func LiftSigned[T ~int32](src []T, dst []uint64) {
	for i, d := range src {
		if d >= 0 {
			dst[i] = uint64(d)
		} else {
			dst[i] = Modulus - uint64(-d)
		}
	}
}

// UnliftTorus maps field elements back to 32-bit torus coefficients.
// Inputs represent centered integers of magnitude below P/2; the result
// is the integer value reduced mod 2^32.
func UnliftTorus[T ~uint32](src []uint64, dst []T) {
	const half = Modulus >> 1
	for i, r := range src {
		if r > half {
			dst[i] = T(r - Modulus) // wraps to the centered negative value
		} else {
			dst[i] = T(r)
		}
	}
}

// ---- field arithmetic ----

func addMod(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry == 1 || s >= Modulus {
		s -= Modulus
	}
	return s
}

func subMod(a, b uint64) uint64 {
	d, borrow := bits.Sub64(a, b, 0)
	if borrow == 1 {
		d += Modulus
	}
	return d
}

// mulMod reduces the 128-bit product using the sparse form of P:
// 2^64 ≡ 2^32 - 1 and 2^96 ≡ -1 (mod P).
func mulMod(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	hiHi := hi >> 32
	hiLo := hi & 0xFFFFFFFF

	t0, borrow := bits.Sub64(lo, hiHi, 0)
	if borrow == 1 {
		t0 -= 0xFFFFFFFF
	}
	t1 := hiLo * 0xFFFFFFFF
	r, carry := bits.Add64(t0, t1, 0)
	if carry == 1 {
		r += 0xFFFFFFFF
	}
	if r >= Modulus {
		r -= Modulus
	}
	return r
}

func powMod(base, exp uint64) uint64 {
	result := uint64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result = mulMod(result, base)
		}
		base = mulMod(base, base)
		exp >>= 1
	}
	return result
}
