// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"errors"
	"math/rand"
	"testing"
)

func TestNewTransformerRejectsBadSizes(t *testing.T) {
	for _, n := range []int{0, 1, 3, 48, 1000} {
		_, err := NewTransformer(n)
		var sizeErr ErrNotPowerOfTwo
		if !errors.As(err, &sizeErr) {
			t.Errorf("NewTransformer(%d): expected size error, got %v", n, err)
		}
	}
}

func TestForwardInverseRoundtrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{2, 16, 512, 1024} {
		tr, err := NewTransformer(n)
		if err != nil {
			t.Fatalf("NewTransformer(%d): %v", n, err)
		}

		p := make([]uint64, n)
		for i := range p {
			p[i] = rng.Uint64() % Modulus
		}
		orig := append([]uint64(nil), p...)

		tr.Forward(p)
		tr.Inverse(p)
		for i := range p {
			if p[i] != orig[i] {
				t.Fatalf("n=%d: roundtrip mismatch at %d: %d != %d", n, i, p[i], orig[i])
			}
		}
	}
}

// TestNegacyclicProduct checks the transform against a schoolbook
// negacyclic convolution in the regime the engine actually uses: one
// operand is a torus polynomial, the other holds small signed
// decomposition digits, and the result must be exact mod 2^32.
func TestNegacyclicProduct(t *testing.T) {
	const n = 128
	tr, err := NewTransformer(n)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(7))
	torus := make([]uint32, n)
	digits := make([]int32, n)
	for i := range torus {
		torus[i] = rng.Uint32()
		digits[i] = int32(rng.Intn(1024)) - 512
	}

	// Schoolbook negacyclic product with int64 accumulation; the digit
	// bound keeps the running sums far below overflow.
	want := make([]uint32, n)
	for i := 0; i < n; i++ {
		var acc int64
		for j := 0; j < n; j++ {
			prod := int64(digits[j]) * int64(int32(torus[(i-j+n)%n]))
			if j > i {
				prod = -prod
			}
			acc += prod
		}
		want[i] = uint32(acc)
	}

	ft := make([]uint64, n)
	fd := make([]uint64, n)
	out := make([]uint64, n)
	LiftTorus(torus, ft)
	LiftSigned(digits, fd)
	tr.Forward(ft)
	tr.Forward(fd)
	tr.Pointwise(ft, fd, out)
	tr.Inverse(out)

	got := make([]uint32, n)
	UnliftTorus(out, got)
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("coefficient %d: got %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestMulAccumulate(t *testing.T) {
	const n = 64
	tr, err := NewTransformer(n)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(3))
	a := make([]uint64, n)
	b := make([]uint64, n)
	acc := make([]uint64, n)
	want := make([]uint64, n)
	for i := range a {
		a[i] = rng.Uint64() % Modulus
		b[i] = rng.Uint64() % Modulus
		acc[i] = rng.Uint64() % Modulus
		want[i] = addMod(acc[i], mulMod(a[i], b[i]))
	}

	tr.MulAccumulate(a, b, acc)
	for i := range acc {
		if acc[i] != want[i] {
			t.Fatalf("lane %d: got %d, want %d", i, acc[i], want[i])
		}
	}
}

func TestBatchTransforms(t *testing.T) {
	const n = 256
	const count = 5
	tr, err := NewTransformer(n)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(11))
	batch := make([]uint64, count*n)
	for i := range batch {
		batch[i] = rng.Uint64() % Modulus
	}
	single := append([]uint64(nil), batch...)

	dev := NewParallelDevice(3)
	tr.ForwardBatch(dev, batch)
	for i := 0; i < count; i++ {
		tr.Forward(single[i*n : (i+1)*n])
	}
	for i := range batch {
		if batch[i] != single[i] {
			t.Fatalf("forward batch diverges at %d", i)
		}
	}

	tr.InverseBatch(dev, batch)
	for i := 0; i < count; i++ {
		tr.Inverse(single[i*n : (i+1)*n])
	}
	for i := range batch {
		if batch[i] != single[i] {
			t.Fatalf("inverse batch diverges at %d", i)
		}
	}
}

func TestLiftUnliftRoundtrip(t *testing.T) {
	vals := []uint32{0, 1, 0x7FFFFFFF, 0x80000000, 0xFFFFFFFF}
	lifted := make([]uint64, len(vals))
	back := make([]uint32, len(vals))
	LiftTorus(vals, lifted)
	UnliftTorus(lifted, back)
	for i := range vals {
		if back[i] != vals[i] {
			t.Errorf("value %#x came back as %#x", vals[i], back[i])
		}
	}

	signed := []int32{0, 1, -1, 512, -512}
	sl := make([]uint64, len(signed))
	LiftSigned(signed, sl)
	sb := make([]uint32, len(signed))
	UnliftTorus(sl, sb)
	for i := range signed {
		if int32(sb[i]) != signed[i] {
			t.Errorf("digit %d came back as %d", signed[i], int32(sb[i]))
		}
	}
}

func TestDeviceRunCoversRange(t *testing.T) {
	for _, dev := range []Device{NewSerialDevice(), NewParallelDevice(4)} {
		const n = 1000
		hits := make([]int32, n)
		dev.Run(n, func(i int) { hits[i]++ })
		dev.Sync()
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("%s: index %d visited %d times", dev.Name(), i, h)
			}
		}
	}
}
