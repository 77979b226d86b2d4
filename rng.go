// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"
)

// RNG supplies all randomness the engine consumes: uniform secret bits,
// uniform torus masks and Gaussian-distributed torus noise. It is
// injected at key-generation and encryption call sites; the core never
// selects an implementation itself.
//
// Implementations need not be safe for concurrent use; each goroutine
// drawing randomness owns its RNG.
type RNG interface {
	// UniformBit draws one uniform bit.
	UniformBit() int32
	// UniformTorus32 draws a uniform torus element.
	UniformTorus32() Torus32
	// FillUniformTorus32 fills out with uniform torus elements.
	FillUniformTorus32(out []Torus32)
	// GaussianTorus32 draws mean + e where e is Gaussian with the given
	// standard deviation (as a fraction of the torus), rounded to the
	// discretized torus.
	GaussianTorus32(mean Torus32, stdDev float64) Torus32
}

// torusSampler turns a blake2b XOF stream into torus samples. Both RNG
// implementations share it and differ only in how the XOF is keyed.
type torusSampler struct {
	xof blake2b.XOF
	buf [4096]byte
	off int

	spare    float64 // cached second Box-Muller variate
	hasSpare bool
}

func newTorusSampler(key []byte) (torusSampler, error) {
	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, key)
	if err != nil {
		return torusSampler{}, fmt.Errorf("tfhe: rng init: %w", err)
	}
	s := torusSampler{xof: xof}
	s.off = len(s.buf)
	return s, nil
}

func (s *torusSampler) refill() {
	// The XOF never errors before its (astronomically large) output
	// length is exhausted.
	if _, err := s.xof.Read(s.buf[:]); err != nil {
		panic(fmt.Sprintf("tfhe: rng stream: %v", err))
	}
	s.off = 0
}

func (s *torusSampler) next32() uint32 {
	if s.off+4 > len(s.buf) {
		s.refill()
	}
	v := binary.LittleEndian.Uint32(s.buf[s.off:])
	s.off += 4
	return v
}

func (s *torusSampler) next64() uint64 {
	if s.off+8 > len(s.buf) {
		s.refill()
	}
	v := binary.LittleEndian.Uint64(s.buf[s.off:])
	s.off += 8
	return v
}

func (s *torusSampler) UniformBit() int32 {
	return int32(s.next32() & 1)
}

func (s *torusSampler) UniformTorus32() Torus32 {
	return Torus32(s.next32())
}

func (s *torusSampler) FillUniformTorus32(out []Torus32) {
	for i := range out {
		out[i] = Torus32(s.next32())
	}
}

// normFloat64 draws a standard normal variate via Box-Muller on uniform
// 53-bit mantissa samples.
func (s *torusSampler) normFloat64() float64 {
	if s.hasSpare {
		s.hasSpare = false
		return s.spare
	}
	// u1 in (0, 1], u2 in [0, 1).
	u1 := (float64(s.next64()>>11) + 1) / (1 << 53)
	u2 := float64(s.next64()>>11) / (1 << 53)
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	s.spare = r * math.Sin(theta)
	s.hasSpare = true
	return r * math.Cos(theta)
}

func (s *torusSampler) GaussianTorus32(mean Torus32, stdDev float64) Torus32 {
	if stdDev == 0 {
		return mean
	}
	return mean + DoubleToTorus32(s.normFloat64()*stdDev)
}

// DeterministicRNG is a reproducible RNG: the same seed yields the same
// stream, keys and ciphertexts. Use for tests and debugging only; it is
// not suitable for production key material.
type DeterministicRNG struct {
	torusSampler
}

// NewDeterministicRNG creates a reproducible RNG from a seed of up to
// 64 bytes.
func NewDeterministicRNG(seed []byte) (*DeterministicRNG, error) {
	s, err := newTorusSampler(seed)
	if err != nil {
		return nil, err
	}
	return &DeterministicRNG{torusSampler: s}, nil
}

// SecureRNG is a cryptographically secure RNG: a blake2b XOF keyed from
// the operating system entropy source.
type SecureRNG struct {
	torusSampler
}

// NewSecureRNG creates a secure RNG for production key material.
func NewSecureRNG() (*SecureRNG, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("tfhe: rng seed: %w", err)
	}
	s, err := newTorusSampler(key[:])
	if err != nil {
		return nil, err
	}
	return &SecureRNG{torusSampler: s}, nil
}
