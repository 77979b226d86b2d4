// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import "errors"

// Configuration errors. These are programming/setup mistakes surfaced
// synchronously before any kernel is dispatched; they are never produced
// by encrypted data itself.
var (
	// ErrInvalidParams reports a ParametersLiteral that cannot describe
	// a working scheme instance.
	ErrInvalidParams = errors.New("tfhe: invalid parameters")

	// ErrParamsMismatch reports a key/ciphertext/evaluator combination
	// built from different parameter sets.
	ErrParamsMismatch = errors.New("tfhe: parameter mismatch")

	// ErrShapeMismatch reports gate operands (or a destination) whose
	// array shapes differ.
	ErrShapeMismatch = errors.New("tfhe: shape mismatch")

	// ErrUnknownGate reports a Gate value outside the closed enumeration.
	ErrUnknownGate = errors.New("tfhe: unknown gate")
)

// ErrInvalidFormat reports serialized data that cannot be decoded.
var ErrInvalidFormat = errors.New("tfhe: invalid serialized format")
