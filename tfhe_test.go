// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/luxfi/tfhe/compute"
)

// Shared key material for the package tests. Key generation dominates
// test runtime, so every test reuses one deterministic fixture.
type testKit struct {
	params Parameters
	rng    *DeterministicRNG
	sk     *SecretKey
	ck     *CloudKey
	enc    *Encryptor
	dec    *Decryptor
	ev     *Evaluator
}

var (
	fixtureOnce sync.Once
	fixtureErr  error
	fixture     testKit
)

func testFixture(t *testing.T) *testKit {
	t.Helper()
	fixtureOnce.Do(func() {
		params, err := NewParameters(ParamsTest)
		if err != nil {
			fixtureErr = err
			return
		}
		rng, err := NewDeterministicRNG([]byte("tfhe package tests"))
		if err != nil {
			fixtureErr = err
			return
		}
		dev := compute.NewParallelDevice(2)
		kg, err := NewKeyGenerator(params, rng, dev)
		if err != nil {
			fixtureErr = err
			return
		}
		sk, ck, err := kg.GenKeyPair()
		if err != nil {
			fixtureErr = err
			return
		}
		ev, err := NewEvaluator(ck, dev, PerformanceParameters{})
		if err != nil {
			fixtureErr = err
			return
		}
		fixture.params = params
		fixture.rng = rng
		fixture.sk = sk
		fixture.ck = ck
		fixture.enc = NewEncryptor(sk, rng)
		fixture.dec = NewDecryptor(sk)
		fixture.ev = ev
	})
	if fixtureErr != nil {
		t.Fatalf("test fixture: %v", fixtureErr)
	}
	return &fixture
}

func TestParameterValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ParametersLiteral)
	}{
		{"zero lwe dimension", func(l *ParametersLiteral) { l.LweDimension = 0 }},
		{"negative lwe dimension", func(l *ParametersLiteral) { l.LweDimension = -4 }},
		{"non power of two degree", func(l *ParametersLiteral) { l.PolyDegree = 500 }},
		{"tiny degree", func(l *ParametersLiteral) { l.PolyDegree = 1 }},
		{"zero mask count", func(l *ParametersLiteral) { l.MaskCount = 0 }},
		{"zero bootstrap base", func(l *ParametersLiteral) { l.BootstrapBaseLog = 0 }},
		{"oversized decomposition", func(l *ParametersLiteral) { l.BootstrapBaseLog = 17; l.BootstrapLength = 2 }},
		{"zero keyswitch length", func(l *ParametersLiteral) { l.KeySwitchLength = 0 }},
		{"negative noise", func(l *ParametersLiteral) { l.LweStdDev = -1e-9 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lit := ParamsTest
			tc.mutate(&lit)
			_, err := NewParameters(lit)
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestParametersLiteralRoundtrip(t *testing.T) {
	for _, lit := range []ParametersLiteral{ParamsSTD128, ParamsTest} {
		params, err := NewParameters(lit)
		if err != nil {
			t.Fatalf("NewParameters: %v", err)
		}
		if diff := cmp.Diff(lit, params.Literal()); diff != "" {
			t.Errorf("literal roundtrip (-want +got):\n%s", diff)
		}
	}
}

func TestParametersEqual(t *testing.T) {
	a, _ := NewParameters(ParamsTest)
	b, _ := NewParameters(ParamsTest)
	c, _ := NewParameters(ParamsSTD128)
	if !a.Equal(b) {
		t.Error("identical literals must compare equal")
	}
	if a.Equal(c) {
		t.Error("different literals must not compare equal")
	}
}

func TestDeterministicRNGReproducible(t *testing.T) {
	r1, err := NewDeterministicRNG([]byte("seed"))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := NewDeterministicRNG([]byte("seed"))
	if err != nil {
		t.Fatal(err)
	}
	r3, err := NewDeterministicRNG([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}

	same, diff := 0, 0
	for i := 0; i < 256; i++ {
		a, b, c := r1.UniformTorus32(), r2.UniformTorus32(), r3.UniformTorus32()
		if a == b {
			same++
		}
		if a == c {
			diff++
		}
	}
	if same != 256 {
		t.Errorf("same seed produced diverging streams (%d/256 matched)", same)
	}
	if diff > 8 {
		t.Errorf("different seeds produced suspiciously similar streams (%d/256 matched)", diff)
	}
}

// TestKeyDerivationDeterministic checks that key generation is a pure
// function of the RNG stream: two generators seeded identically must
// produce bit-identical secret and cloud keys, device parallelism
// notwithstanding.
func TestKeyDerivationDeterministic(t *testing.T) {
	params, err := NewParameters(ParamsTest)
	if err != nil {
		t.Fatal(err)
	}

	gen := func(dev compute.Device) (*SecretKey, *CloudKey) {
		t.Helper()
		rng, err := NewDeterministicRNG([]byte("key derivation"))
		if err != nil {
			t.Fatal(err)
		}
		kg, err := NewKeyGenerator(params, rng, dev)
		if err != nil {
			t.Fatal(err)
		}
		sk, ck, err := kg.GenKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		return sk, ck
	}

	sk1, ck1 := gen(compute.NewSerialDevice())
	sk2, ck2 := gen(compute.NewParallelDevice(3))

	skBlob1, err := sk1.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	skBlob2, err := sk2.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(skBlob1, skBlob2) {
		t.Error("same-seed secret keys serialize differently")
	}

	ckBlob1, err := ck1.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	ckBlob2, err := ck2.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ckBlob1, ckBlob2) {
		t.Error("same-seed cloud keys serialize differently")
	}
}

func TestGaussianZeroStdDevIsExact(t *testing.T) {
	rng, err := NewDeterministicRNG([]byte("gauss"))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 16; i++ {
		mean := rng.UniformTorus32()
		if got := rng.GaussianTorus32(mean, 0); got != mean {
			t.Fatalf("zero stddev must return the mean: got %#x, want %#x", got, mean)
		}
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	f := testFixture(t)

	bits := []bool{true, false, true, true, false, false, true, false}
	ct, err := f.enc.Encrypt(bits)
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.dec.Decrypt(ct)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(bits, got); diff != "" {
		t.Errorf("roundtrip (-want +got):\n%s", diff)
	}

	// Fresh encryptions of the same bit must differ: each sample draws
	// its own mask and noise.
	ct2, err := f.enc.Encrypt(bits)
	if err != nil {
		t.Fatal(err)
	}
	identical := true
	for i := range ct.A {
		if ct.A[i] != ct2.A[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Error("two encryptions of the same bits share a mask")
	}
}

func TestEncryptShaped(t *testing.T) {
	f := testFixture(t)

	bits := make([]bool, 12)
	for i := range bits {
		bits[i] = i%2 == 0
	}
	ct, err := f.enc.EncryptShaped(bits, []int{3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{3, 4}, ct.Shape()); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
	if ct.Count() != 12 {
		t.Errorf("count: got %d, want 12", ct.Count())
	}

	if _, err := f.enc.EncryptShaped(bits, []int{3, 5}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("shape/bits mismatch: expected ErrShapeMismatch, got %v", err)
	}
	if _, err := f.enc.EncryptShaped(bits, []int{3, 0}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("zero extent: expected ErrShapeMismatch, got %v", err)
	}
}

func TestDecryptWrongDimension(t *testing.T) {
	f := testFixture(t)

	other, err := NewParameters(ParamsSTD128)
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := NewLweSampleArray(other, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.dec.Decrypt(foreign); !errors.Is(err, ErrParamsMismatch) {
		t.Errorf("expected ErrParamsMismatch, got %v", err)
	}
}

func TestCloudKeyRejectsForeignSecretKey(t *testing.T) {
	f := testFixture(t)

	other, err := NewParameters(ParamsSTD128)
	if err != nil {
		t.Fatal(err)
	}
	rng, err := NewDeterministicRNG([]byte("foreign"))
	if err != nil {
		t.Fatal(err)
	}
	kg, err := NewKeyGenerator(other, rng, compute.NewSerialDevice())
	if err != nil {
		t.Fatal(err)
	}
	foreignSK := kg.GenSecretKey()

	kgTest, err := NewKeyGenerator(f.params, rng, compute.NewSerialDevice())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := kgTest.GenCloudKey(foreignSK); !errors.Is(err, ErrParamsMismatch) {
		t.Errorf("expected ErrParamsMismatch, got %v", err)
	}
}

func TestFreshNoiseWithinBudget(t *testing.T) {
	f := testFixture(t)

	bits := make([]bool, 32)
	for i := range bits {
		bits[i] = i%2 == 0
	}
	ct, err := f.enc.Encrypt(bits)
	if err != nil {
		t.Fatal(err)
	}
	report, err := NewNoiseEstimator(f.sk).Report(ct)
	if err != nil {
		t.Fatal(err)
	}
	// Decoding margin is 1/16 of the torus; a fresh test-parameter
	// encryption sits many orders of magnitude below it.
	if report.Max >= 1.0/16 {
		t.Errorf("fresh encryption noise %v exceeds decoding margin", report.Max)
	}
}
