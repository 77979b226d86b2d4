// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Serialized objects carry a common header: magic, format version, an
// object kind byte, and the full parameter literal. Decoding validates
// all three before touching the payload, and re-derives Parameters
// through NewParameters so a corrupted header cannot smuggle in an
// invalid parameter set.
const (
	serialMagic   uint32 = 0x4C544648 // "LTFH"
	serialVersion uint8  = 1
)

const (
	kindSecretKey uint8 = iota + 1
	kindCloudKey
	kindSampleArray
)

var byteOrder = binary.LittleEndian

func writeHeader(w io.Writer, kind uint8, lit ParametersLiteral) error {
	fields := []any{
		serialMagic, serialVersion, kind,
		uint32(lit.LweDimension), uint32(lit.PolyDegree), uint32(lit.MaskCount),
		uint32(lit.BootstrapBaseLog), uint32(lit.BootstrapLength),
		uint32(lit.KeySwitchBaseLog), uint32(lit.KeySwitchLength),
		math.Float64bits(lit.LweStdDev), math.Float64bits(lit.TlweStdDev),
	}
	for _, f := range fields {
		if err := binary.Write(w, byteOrder, f); err != nil {
			return err
		}
	}
	return nil
}

func readHeader(r io.Reader, wantKind uint8) (Parameters, error) {
	var (
		magic   uint32
		version uint8
		kind    uint8
	)
	if err := binary.Read(r, byteOrder, &magic); err != nil {
		return Parameters{}, fmt.Errorf("%w: short header: %v", ErrInvalidFormat, err)
	}
	if magic != serialMagic {
		return Parameters{}, fmt.Errorf("%w: bad magic 0x%08X", ErrInvalidFormat, magic)
	}
	if err := binary.Read(r, byteOrder, &version); err != nil {
		return Parameters{}, fmt.Errorf("%w: short header: %v", ErrInvalidFormat, err)
	}
	if version != serialVersion {
		return Parameters{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, version)
	}
	if err := binary.Read(r, byteOrder, &kind); err != nil {
		return Parameters{}, fmt.Errorf("%w: short header: %v", ErrInvalidFormat, err)
	}
	if kind != wantKind {
		return Parameters{}, fmt.Errorf("%w: object kind %d, want %d", ErrInvalidFormat, kind, wantKind)
	}

	var u [7]uint32
	var fbits [2]uint64
	for i := range u {
		if err := binary.Read(r, byteOrder, &u[i]); err != nil {
			return Parameters{}, fmt.Errorf("%w: short header: %v", ErrInvalidFormat, err)
		}
	}
	for i := range fbits {
		if err := binary.Read(r, byteOrder, &fbits[i]); err != nil {
			return Parameters{}, fmt.Errorf("%w: short header: %v", ErrInvalidFormat, err)
		}
	}
	// Plausibility caps before any payload allocation: the decoded sizes
	// drive key buffer allocations, so a corrupt header must not be able
	// to demand gigabytes before the first payload read fails.
	if u[0] > 1<<15 || u[1] > 1<<16 || u[2] > 8 {
		return Parameters{}, fmt.Errorf("%w: implausible dimensions (n=%d, N=%d, k=%d)",
			ErrInvalidFormat, u[0], u[1], u[2])
	}
	lit := ParametersLiteral{
		LweDimension:     int(u[0]),
		PolyDegree:       int(u[1]),
		MaskCount:        int(u[2]),
		BootstrapBaseLog: int(u[3]),
		BootstrapLength:  int(u[4]),
		KeySwitchBaseLog: int(u[5]),
		KeySwitchLength:  int(u[6]),
		LweStdDev:        math.Float64frombits(fbits[0]),
		TlweStdDev:       math.Float64frombits(fbits[1]),
	}
	params, err := NewParameters(lit)
	if err != nil {
		return Parameters{}, fmt.Errorf("%w: header parameters: %v", ErrInvalidFormat, err)
	}
	return params, nil
}

// ========== Secret Key Serialization ==========

// WriteTo serializes the secret key.
func (sk *SecretKey) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeHeader(cw, kindSecretKey, sk.params.Literal()); err != nil {
		return cw.n, fmt.Errorf("serialize secret key header: %w", err)
	}
	if err := binary.Write(cw, byteOrder, sk.lweKey); err != nil {
		return cw.n, fmt.Errorf("serialize lwe key: %w", err)
	}
	if err := binary.Write(cw, byteOrder, sk.tlweKey); err != nil {
		return cw.n, fmt.Errorf("serialize tlwe key: %w", err)
	}
	return cw.n, nil
}

// ReadFrom deserializes a secret key, replacing the receiver's state.
func (sk *SecretKey) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	params, err := readHeader(cr, kindSecretKey)
	if err != nil {
		return cr.n, err
	}
	lweKey := make([]int32, params.LweDimension())
	tlweKey := make([]int32, params.ExtractedDimension())
	if err := binary.Read(cr, byteOrder, lweKey); err != nil {
		return cr.n, fmt.Errorf("%w: lwe key: %v", ErrInvalidFormat, err)
	}
	if err := binary.Read(cr, byteOrder, tlweKey); err != nil {
		return cr.n, fmt.Errorf("%w: tlwe key: %v", ErrInvalidFormat, err)
	}
	for _, bit := range lweKey {
		if bit != 0 && bit != 1 {
			return cr.n, fmt.Errorf("%w: lwe key entry %d out of range", ErrInvalidFormat, bit)
		}
	}
	for _, bit := range tlweKey {
		if bit != 0 && bit != 1 {
			return cr.n, fmt.Errorf("%w: tlwe key entry %d out of range", ErrInvalidFormat, bit)
		}
	}
	sk.params = params
	sk.lweKey = lweKey
	sk.tlweKey = tlweKey
	return cr.n, nil
}

// MarshalBinary serializes the secret key to binary format.
func (sk *SecretKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := sk.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the secret key from binary format.
func (sk *SecretKey) UnmarshalBinary(data []byte) error {
	_, err := sk.ReadFrom(bytes.NewReader(data))
	return err
}

// ========== Cloud Key Serialization ==========

// WriteTo serializes the cloud key, including the transform-domain
// bootstrapping key.
func (ck *CloudKey) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeHeader(cw, kindCloudKey, ck.params.Literal()); err != nil {
		return cw.n, fmt.Errorf("serialize cloud key header: %w", err)
	}
	for i, trgsw := range ck.bk {
		if err := binary.Write(cw, byteOrder, trgsw.data); err != nil {
			return cw.n, fmt.Errorf("serialize bootstrap key %d: %w", i, err)
		}
	}
	if err := binary.Write(cw, byteOrder, ck.ksA); err != nil {
		return cw.n, fmt.Errorf("serialize key switch masks: %w", err)
	}
	if err := binary.Write(cw, byteOrder, ck.ksB); err != nil {
		return cw.n, fmt.Errorf("serialize key switch bodies: %w", err)
	}
	return cw.n, nil
}

// ReadFrom deserializes a cloud key, replacing the receiver's state.
func (ck *CloudKey) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	params, err := readHeader(cr, kindCloudKey)
	if err != nil {
		return cr.n, err
	}
	n := params.LweDimension()
	k := params.MaskCount()
	l := params.BootstrapLength()
	degree := params.PolyDegree()
	t := params.KeySwitchLength()
	ext := params.ExtractedDimension()

	bk := make([]*transformedTrgsw, n)
	for i := range bk {
		trgsw := newTransformedTrgsw(k, l, degree)
		if err := binary.Read(cr, byteOrder, trgsw.data); err != nil {
			return cr.n, fmt.Errorf("%w: bootstrap key %d: %v", ErrInvalidFormat, i, err)
		}
		bk[i] = trgsw
	}
	ksA := make([]Torus32, ext*t*n)
	ksB := make([]Torus32, ext*t)
	if err := binary.Read(cr, byteOrder, ksA); err != nil {
		return cr.n, fmt.Errorf("%w: key switch masks: %v", ErrInvalidFormat, err)
	}
	if err := binary.Read(cr, byteOrder, ksB); err != nil {
		return cr.n, fmt.Errorf("%w: key switch bodies: %v", ErrInvalidFormat, err)
	}

	ck.params = params
	ck.bk = bk
	ck.ksA = ksA
	ck.ksB = ksB
	return cr.n, nil
}

// MarshalBinary serializes the cloud key to binary format.
func (ck *CloudKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := ck.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the cloud key from binary format.
func (ck *CloudKey) UnmarshalBinary(data []byte) error {
	_, err := ck.ReadFrom(bytes.NewReader(data))
	return err
}

// ========== Ciphertext Serialization ==========

// WriteTo serializes the sample array with its shape.
func (arr *LweSampleArray) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	fields := []any{serialMagic, serialVersion, kindSampleArray,
		uint32(arr.n), uint32(len(arr.shape))}
	for _, f := range fields {
		if err := binary.Write(cw, byteOrder, f); err != nil {
			return cw.n, fmt.Errorf("serialize ciphertext header: %w", err)
		}
	}
	for _, d := range arr.shape {
		if err := binary.Write(cw, byteOrder, uint32(d)); err != nil {
			return cw.n, fmt.Errorf("serialize ciphertext shape: %w", err)
		}
	}
	if err := binary.Write(cw, byteOrder, arr.A); err != nil {
		return cw.n, fmt.Errorf("serialize ciphertext masks: %w", err)
	}
	if err := binary.Write(cw, byteOrder, arr.B); err != nil {
		return cw.n, fmt.Errorf("serialize ciphertext bodies: %w", err)
	}
	if err := binary.Write(cw, byteOrder, arr.Variances); err != nil {
		return cw.n, fmt.Errorf("serialize ciphertext variances: %w", err)
	}
	return cw.n, nil
}

// ReadFrom deserializes a sample array, replacing the receiver's state.
func (arr *LweSampleArray) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	var (
		magic   uint32
		version uint8
		kind    uint8
		dim     uint32
		rank    uint32
	)
	for _, f := range []any{&magic, &version, &kind, &dim, &rank} {
		if err := binary.Read(cr, byteOrder, f); err != nil {
			return cr.n, fmt.Errorf("%w: short header: %v", ErrInvalidFormat, err)
		}
	}
	if magic != serialMagic {
		return cr.n, fmt.Errorf("%w: bad magic 0x%08X", ErrInvalidFormat, magic)
	}
	if version != serialVersion {
		return cr.n, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, version)
	}
	if kind != kindSampleArray {
		return cr.n, fmt.Errorf("%w: object kind %d, want %d", ErrInvalidFormat, kind, kindSampleArray)
	}
	if dim == 0 || dim > 1<<20 || rank == 0 || rank > 16 {
		return cr.n, fmt.Errorf("%w: implausible dimension %d or rank %d", ErrInvalidFormat, dim, rank)
	}
	shape := make([]int, rank)
	for i := range shape {
		var d uint32
		if err := binary.Read(cr, byteOrder, &d); err != nil {
			return cr.n, fmt.Errorf("%w: shape: %v", ErrInvalidFormat, err)
		}
		shape[i] = int(d)
	}
	count, err := shapeCount(shape)
	if err != nil {
		return cr.n, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	a := make([]Torus32, count*int(dim))
	b := make([]Torus32, count)
	variances := make([]float64, count)
	if err := binary.Read(cr, byteOrder, a); err != nil {
		return cr.n, fmt.Errorf("%w: masks: %v", ErrInvalidFormat, err)
	}
	if err := binary.Read(cr, byteOrder, b); err != nil {
		return cr.n, fmt.Errorf("%w: bodies: %v", ErrInvalidFormat, err)
	}
	if err := binary.Read(cr, byteOrder, variances); err != nil {
		return cr.n, fmt.Errorf("%w: variances: %v", ErrInvalidFormat, err)
	}

	arr.n = int(dim)
	arr.shape = shape
	arr.A = a
	arr.B = b
	arr.Variances = variances
	return cr.n, nil
}

// MarshalBinary serializes the sample array to binary format.
func (arr *LweSampleArray) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := arr.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the sample array from binary format.
func (arr *LweSampleArray) UnmarshalBinary(data []byte) error {
	_, err := arr.ReadFrom(bytes.NewReader(data))
	return err
}

// ========== Counting wrappers ==========

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
