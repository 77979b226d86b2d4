// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// LweSampleArray is a batch of LWE samples sharing one logical shape.
// Sample i occupies A[i*n:(i+1)*n] (the mask) and B[i] (the body); the
// contiguous layout lets gate kernels sweep the whole batch without
// per-sample indirection. Variances track an upper bound on each
// sample's noise for diagnostics; they carry no cryptographic weight.
//
// Arrays contain no secret material and may be copied or transmitted
// freely. A destination array must not be concurrently read by another
// in-flight operation; passing one array as both a source and another
// gate's destination without synchronization is undefined behavior.
type LweSampleArray struct {
	n     int
	shape []int

	A         []Torus32
	B         []Torus32
	Variances []float64
}

// NewLweSampleArray allocates a zeroed array of the given shape. This is
// the destination-buffer constructor; it carries no cryptographic
// content until written by encryption or a gate.
func NewLweSampleArray(params Parameters, shape ...int) (*LweSampleArray, error) {
	count, err := shapeCount(shape)
	if err != nil {
		return nil, err
	}
	return &LweSampleArray{
		n:         params.LweDimension(),
		shape:     append([]int(nil), shape...),
		A:         make([]Torus32, count*params.LweDimension()),
		B:         make([]Torus32, count),
		Variances: make([]float64, count),
	}, nil
}

// Count returns the number of samples, the product of the shape.
func (arr *LweSampleArray) Count() int { return len(arr.B) }

// Shape returns a copy of the array's logical shape.
func (arr *LweSampleArray) Shape() []int { return slices.Clone(arr.shape) }

// LweDimension returns the mask length of each sample.
func (arr *LweSampleArray) LweDimension() int { return arr.n }

// mask returns the mask slice of sample i.
func (arr *LweSampleArray) mask(i int) []Torus32 {
	return arr.A[i*arr.n : (i+1)*arr.n]
}

// Copy returns a deep copy of the array.
func (arr *LweSampleArray) Copy() *LweSampleArray {
	return &LweSampleArray{
		n:         arr.n,
		shape:     slices.Clone(arr.shape),
		A:         slices.Clone(arr.A),
		B:         slices.Clone(arr.B),
		Variances: slices.Clone(arr.Variances),
	}
}

// sameShape reports whether two arrays share shape and dimension.
func (arr *LweSampleArray) sameShape(other *LweSampleArray) bool {
	return arr.n == other.n && slices.Equal(arr.shape, other.shape)
}

// checkOperands validates that all arrays share shape and dimension.
// Gates call this before dispatching any kernel.
func checkOperands(arrs ...*LweSampleArray) error {
	for _, a := range arrs[1:] {
		if !arrs[0].sameShape(a) {
			return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, arrs[0].shape, a.shape)
		}
	}
	return nil
}

func shapeCount(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShapeMismatch)
	}
	count := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: non-positive extent %d", ErrShapeMismatch, d)
		}
		count *= d
	}
	return count, nil
}
