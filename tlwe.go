// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

// tlweSample is a TLWE ciphertext: k mask polynomials followed by the
// body polynomial, stored contiguously as (k+1)*N torus coefficients.
// TLWE samples only live inside bootstrapping; they are never exposed
// to callers.
type tlweSample struct {
	k    int
	n    int // polynomial degree
	data []Torus32
}

func newTlweSample(k, degree int) *tlweSample {
	return &tlweSample{k: k, n: degree, data: make([]Torus32, (k+1)*degree)}
}

// poly returns polynomial u: mask polynomials for u < k, body for u == k.
func (s *tlweSample) poly(u int) []Torus32 {
	return s.data[u*s.n : (u+1)*s.n]
}

// extractLweSample extracts the LWE sample encrypting the constant
// coefficient of the TLWE plaintext, under the key formed by the TLWE
// secret polynomial coefficients. aOut must hold k*N values; the body
// is returned. The sign pattern follows from the negacyclic constant
// coefficient of the mask-times-secret products.
func (s *tlweSample) extractLweSample(aOut []Torus32) Torus32 {
	n := s.n
	for p := 0; p < s.k; p++ {
		mask := s.poly(p)
		aOut[p*n] = mask[0]
		for j := 1; j < n; j++ {
			aOut[p*n+j] = -mask[n-j]
		}
	}
	return s.poly(s.k)[0]
}
