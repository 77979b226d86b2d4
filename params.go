// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"
	"math/bits"
)

// ParametersLiteral is a user-friendly scheme parameter specification.
// All sizing of keys, ciphertexts and kernels derives from these values;
// components built from mismatched Parameters refuse to interoperate.
type ParametersLiteral struct {
	// LweDimension is the LWE mask length n.
	LweDimension int
	// PolyDegree is the TLWE polynomial degree N (power of two).
	PolyDegree int
	// MaskCount is the number of TLWE mask polynomials k.
	MaskCount int
	// BootstrapBaseLog is log2 of the gadget decomposition base Bg
	// used by the bootstrapping key.
	BootstrapBaseLog int
	// BootstrapLength is the gadget decomposition length l.
	BootstrapLength int
	// KeySwitchBaseLog is log2 of the key-switching decomposition base.
	KeySwitchBaseLog int
	// KeySwitchLength is the key-switching decomposition length t.
	KeySwitchLength int
	// LweStdDev is the noise standard deviation (as a fraction of the
	// torus) for LWE encryptions and the key-switching key.
	LweStdDev float64
	// TlweStdDev is the noise standard deviation for TLWE encryptions
	// and the bootstrapping key.
	TlweStdDev float64
}

// Standard parameter sets.
var (
	// ParamsSTD128 is the published TFHE gate-bootstrapping parameter
	// set targeting 128-bit security.
	ParamsSTD128 = ParametersLiteral{
		LweDimension:     500,
		PolyDegree:       1024,
		MaskCount:        1,
		BootstrapBaseLog: 10,
		BootstrapLength:  2,
		KeySwitchBaseLog: 2,
		KeySwitchLength:  8,
		LweStdDev:        3.0517578125e-05, // 2^-15
		TlweStdDev:       9.0e-09,
	}

	// ParamsTest is a small, fast, INSECURE parameter set for tests and
	// development. Do not protect real data with it.
	ParamsTest = ParametersLiteral{
		LweDimension:     64,
		PolyDegree:       512,
		MaskCount:        1,
		BootstrapBaseLog: 10,
		BootstrapLength:  2,
		KeySwitchBaseLog: 2,
		KeySwitchLength:  8,
		LweStdDev:        1.0e-09,
		TlweStdDev:       1.0e-09,
	}
)

// Parameters is an immutable, validated scheme parameter set.
type Parameters struct {
	n       int
	polyN   int
	k       int
	bsBgBit int
	bsL     int
	ksBgBit int
	ksL     int
	lweStd  float64
	tlweStd float64
}

// NewParameters validates a ParametersLiteral and returns the immutable
// parameter set. All failures here are configuration errors.
func NewParameters(lit ParametersLiteral) (Parameters, error) {
	switch {
	case lit.LweDimension <= 0:
		return Parameters{}, fmt.Errorf("%w: LWE dimension %d", ErrInvalidParams, lit.LweDimension)
	case lit.PolyDegree < 2 || lit.PolyDegree&(lit.PolyDegree-1) != 0:
		return Parameters{}, fmt.Errorf("%w: polynomial degree %d is not a power of two", ErrInvalidParams, lit.PolyDegree)
	case lit.MaskCount < 1:
		return Parameters{}, fmt.Errorf("%w: mask count %d", ErrInvalidParams, lit.MaskCount)
	case lit.BootstrapBaseLog < 1 || lit.BootstrapLength < 1:
		return Parameters{}, fmt.Errorf("%w: bootstrap decomposition (base 2^%d, length %d)", ErrInvalidParams, lit.BootstrapBaseLog, lit.BootstrapLength)
	case lit.BootstrapBaseLog*lit.BootstrapLength > 32:
		return Parameters{}, fmt.Errorf("%w: bootstrap decomposition covers %d bits, torus has 32", ErrInvalidParams, lit.BootstrapBaseLog*lit.BootstrapLength)
	case lit.KeySwitchBaseLog < 1 || lit.KeySwitchLength < 1:
		return Parameters{}, fmt.Errorf("%w: key-switch decomposition (base 2^%d, length %d)", ErrInvalidParams, lit.KeySwitchBaseLog, lit.KeySwitchLength)
	case lit.KeySwitchBaseLog*lit.KeySwitchLength > 32:
		return Parameters{}, fmt.Errorf("%w: key-switch decomposition covers %d bits, torus has 32", ErrInvalidParams, lit.KeySwitchBaseLog*lit.KeySwitchLength)
	case lit.LweStdDev < 0 || lit.TlweStdDev < 0:
		return Parameters{}, fmt.Errorf("%w: negative noise standard deviation", ErrInvalidParams)
	}

	// The transform accumulates (k+1)*l*N products of a decomposition
	// digit (< 2^(BaseLog-1)) with a 32-bit torus coefficient. The sum
	// must stay below half the transform modulus for exactness.
	terms := (lit.MaskCount + 1) * lit.BootstrapLength * lit.PolyDegree
	if bits.Len64(uint64(terms))+lit.BootstrapBaseLog-1+32 >= 63 {
		return Parameters{}, fmt.Errorf("%w: decomposition base 2^%d with degree %d overflows the exact transform bound", ErrInvalidParams, lit.BootstrapBaseLog, lit.PolyDegree)
	}

	return Parameters{
		n:       lit.LweDimension,
		polyN:   lit.PolyDegree,
		k:       lit.MaskCount,
		bsBgBit: lit.BootstrapBaseLog,
		bsL:     lit.BootstrapLength,
		ksBgBit: lit.KeySwitchBaseLog,
		ksL:     lit.KeySwitchLength,
		lweStd:  lit.LweStdDev,
		tlweStd: lit.TlweStdDev,
	}, nil
}

// LweDimension returns the LWE mask length n.
func (p Parameters) LweDimension() int { return p.n }

// PolyDegree returns the TLWE polynomial degree N.
func (p Parameters) PolyDegree() int { return p.polyN }

// MaskCount returns the number of TLWE mask polynomials k.
func (p Parameters) MaskCount() int { return p.k }

// ExtractedDimension returns k*N, the dimension of samples extracted
// from the bootstrapping accumulator before key switching.
func (p Parameters) ExtractedDimension() int { return p.k * p.polyN }

// BootstrapBaseLog returns log2(Bg).
func (p Parameters) BootstrapBaseLog() int { return p.bsBgBit }

// BootstrapLength returns the gadget decomposition length l.
func (p Parameters) BootstrapLength() int { return p.bsL }

// KeySwitchBaseLog returns log2 of the key-switching base.
func (p Parameters) KeySwitchBaseLog() int { return p.ksBgBit }

// KeySwitchLength returns the key-switching decomposition length t.
func (p Parameters) KeySwitchLength() int { return p.ksL }

// LweStdDev returns the LWE/key-switch noise standard deviation.
func (p Parameters) LweStdDev() float64 { return p.lweStd }

// TlweStdDev returns the TLWE/bootstrap noise standard deviation.
func (p Parameters) TlweStdDev() float64 { return p.tlweStd }

// Literal returns the literal this parameter set was built from.
func (p Parameters) Literal() ParametersLiteral {
	return ParametersLiteral{
		LweDimension:     p.n,
		PolyDegree:       p.polyN,
		MaskCount:        p.k,
		BootstrapBaseLog: p.bsBgBit,
		BootstrapLength:  p.bsL,
		KeySwitchBaseLog: p.ksBgBit,
		KeySwitchLength:  p.ksL,
		LweStdDev:        p.lweStd,
		TlweStdDev:       p.tlweStd,
	}
}

// Equal reports whether two parameter sets are identical.
func (p Parameters) Equal(other Parameters) bool { return p == other }
