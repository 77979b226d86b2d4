// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

// SecretKey is the decryption key: n uniform LWE secret bits plus k
// degree-N polynomials of uniform TLWE secret bits. It is the only
// entity from which plaintext recovery is possible and must never be
// transmitted.
type SecretKey struct {
	params Parameters

	// lweKey holds the n LWE secret bits.
	lweKey []int32
	// tlweKey holds the k*N TLWE secret bits, polynomial-major, so flat
	// index i*N+j is coefficient j of polynomial i. This is also the
	// key of samples extracted from the bootstrapping accumulator.
	tlweKey []int32
}

// Parameters returns the scheme parameters the key was generated for.
func (sk *SecretKey) Parameters() Parameters { return sk.params }

// CloudKey is the public evaluation key derived from a SecretKey: the
// bootstrapping key (transform-domain TRGSW encryptions of the LWE
// secret bits under the TLWE secret) and the key-switching key (LWE
// encryptions of the scaled TLWE secret coefficients under the LWE
// secret). It contains only encryptions of secret material and is safe
// to share with any evaluating party. Immutable once generated;
// concurrent gate invocations may share it without locking.
type CloudKey struct {
	params Parameters

	// bk[i] is the TRGSW encryption of LWE secret bit i.
	bk []*transformedTrgsw

	// Key-switching key, flat layout: entry (i, j) encrypts TLWE secret
	// coefficient i scaled by 2^-( (j+1) * KeySwitchBaseLog ). Masks at
	// ksA[(i*t+j)*n : ...+n], bodies at ksB[i*t+j].
	ksA []Torus32
	ksB []Torus32
}

// Parameters returns the scheme parameters the key was generated for.
func (ck *CloudKey) Parameters() Parameters { return ck.params }

// ksRow returns the mask and body of key-switching entry (i, j).
func (ck *CloudKey) ksRow(i, j int) ([]Torus32, Torus32) {
	t := ck.params.KeySwitchLength()
	n := ck.params.LweDimension()
	off := (i*t + j) * n
	return ck.ksA[off : off+n], ck.ksB[i*t+j]
}
