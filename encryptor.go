// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import "fmt"

// Encryptor encrypts plaintext bit arrays under a secret key.
type Encryptor struct {
	params Parameters
	sk     *SecretKey
	rng    RNG
}

// NewEncryptor creates an encryptor drawing masks and noise from rng.
func NewEncryptor(sk *SecretKey, rng RNG) *Encryptor {
	return &Encryptor{params: sk.params, sk: sk, rng: rng}
}

// Encrypt encrypts a flat bit slice as a one-dimensional sample array.
func (enc *Encryptor) Encrypt(bits []bool) (*LweSampleArray, error) {
	return enc.EncryptShaped(bits, []int{len(bits)})
}

// EncryptShaped encrypts bits (flattened row-major) into an array of the
// given shape. Each bit gets a fresh mask and Gaussian noise; true maps
// to +1/8 on the torus, false to -1/8.
func (enc *Encryptor) EncryptShaped(bits []bool, shape []int) (*LweSampleArray, error) {
	arr, err := NewLweSampleArray(enc.params, shape...)
	if err != nil {
		return nil, err
	}
	if arr.Count() != len(bits) {
		return nil, fmt.Errorf("%w: %d bits for shape %v", ErrShapeMismatch, len(bits), shape)
	}

	stdDev := enc.params.LweStdDev()
	variance := stdDev * stdDev
	for i, bit := range bits {
		arr.B[i] = lweEncrypt(arr.mask(i), boolToMu(bit), enc.sk.lweKey, stdDev, enc.rng)
		arr.Variances[i] = variance
	}
	return arr, nil
}

// Decryptor decrypts sample arrays under a secret key.
type Decryptor struct {
	params Parameters
	sk     *SecretKey
}

// NewDecryptor creates a decryptor.
func NewDecryptor(sk *SecretKey) *Decryptor {
	return &Decryptor{params: sk.params, sk: sk}
}

// Decrypt recovers the plaintext bits of an array, flattened row-major.
// The result is correct with overwhelming probability for any array
// produced by a correctly parameterized encrypt-then-gates pipeline.
// Noise overflow from misuse decrypts wrong silently; detecting it
// would require the secret key the evaluating party does not hold.
func (dec *Decryptor) Decrypt(arr *LweSampleArray) ([]bool, error) {
	if arr.LweDimension() != dec.params.LweDimension() {
		return nil, fmt.Errorf("%w: sample dimension %d, key dimension %d",
			ErrParamsMismatch, arr.LweDimension(), dec.params.LweDimension())
	}
	bits := make([]bool, arr.Count())
	for i := range bits {
		bits[i] = muToBool(lwePhase(arr.mask(i), arr.B[i], dec.sk.lweKey))
	}
	return bits, nil
}
