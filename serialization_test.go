// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/luxfi/tfhe/compute"
)

func TestSecretKeySerializationRoundtrip(t *testing.T) {
	f := testFixture(t)

	blob, err := f.sk.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	restored := new(SecretKey)
	if err := restored.UnmarshalBinary(blob); err != nil {
		t.Fatal(err)
	}
	if !restored.Parameters().Equal(f.params) {
		t.Error("restored key carries different parameters")
	}

	// The restored key must decrypt ciphertexts made under the original.
	bits := []bool{true, false, false, true}
	ct, err := f.enc.Encrypt(bits)
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewDecryptor(restored).Decrypt(ct)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(bits, got); diff != "" {
		t.Errorf("decrypt under restored key (-want +got):\n%s", diff)
	}
}

func TestCloudKeySerializationRoundtrip(t *testing.T) {
	f := testFixture(t)

	blob, err := f.ck.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	restored := new(CloudKey)
	if err := restored.UnmarshalBinary(blob); err != nil {
		t.Fatal(err)
	}

	// A fresh evaluator on the restored key must compute correct gates.
	ev, err := NewEvaluator(restored, compute.NewSerialDevice(), PerformanceParameters{})
	if err != nil {
		t.Fatal(err)
	}
	a := encryptBits(t, f, false, true, false, true)
	b := encryptBits(t, f, false, false, true, true)
	out, err := ev.Or(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]bool{false, true, true, true}, decryptBits(t, f, out)); diff != "" {
		t.Errorf("OR under restored cloud key (-want +got):\n%s", diff)
	}

	// Serialization is deterministic: marshal of the restored key
	// byte-equals the original blob.
	blob2, err := restored.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob, blob2) {
		t.Error("cloud key serialization is not canonical")
	}
}

func TestCiphertextSerializationRoundtrip(t *testing.T) {
	f := testFixture(t)

	bits := make([]bool, 6)
	for i := range bits {
		bits[i] = i%2 == 1
	}
	ct, err := f.enc.EncryptShaped(bits, []int{2, 3})
	if err != nil {
		t.Fatal(err)
	}

	blob, err := ct.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	restored := new(LweSampleArray)
	if err := restored.UnmarshalBinary(blob); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(ct.Shape(), restored.Shape()); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ct.Variances, restored.Variances); diff != "" {
		t.Errorf("variances (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(bits, decryptBits(t, f, restored)); diff != "" {
		t.Errorf("decrypt after roundtrip (-want +got):\n%s", diff)
	}
}

func TestDeserializationRejectsCorruptData(t *testing.T) {
	f := testFixture(t)

	ct, err := f.enc.Encrypt([]bool{true, false})
	if err != nil {
		t.Fatal(err)
	}
	blob, err := ct.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("truncated", func(t *testing.T) {
		for _, cut := range []int{0, 3, len(blob) / 2, len(blob) - 1} {
			if err := new(LweSampleArray).UnmarshalBinary(blob[:cut]); !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("cut=%d: expected ErrInvalidFormat, got %v", cut, err)
			}
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[0] ^= 0xFF
		if err := new(LweSampleArray).UnmarshalBinary(bad); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("expected ErrInvalidFormat, got %v", err)
		}
	})

	t.Run("wrong kind", func(t *testing.T) {
		skBlob, err := f.sk.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		if err := new(CloudKey).UnmarshalBinary(skBlob); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("expected ErrInvalidFormat, got %v", err)
		}
	})

	t.Run("implausible key dimensions", func(t *testing.T) {
		skBlob, err := f.sk.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		// The LWE dimension sits right after magic, version and kind.
		// An absurd value must be rejected by the header plausibility
		// caps before any key buffer is allocated.
		bad := append([]byte(nil), skBlob...)
		byteOrder.PutUint32(bad[6:], 0xFFFFFFFF)
		if err := new(SecretKey).UnmarshalBinary(bad); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("secret key: expected ErrInvalidFormat, got %v", err)
		}

		ckBlob := append([]byte(nil), skBlob...)
		ckBlob[5] = kindCloudKey
		byteOrder.PutUint32(ckBlob[6:], 0xFFFFFFFF)
		if err := new(CloudKey).UnmarshalBinary(ckBlob); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("cloud key: expected ErrInvalidFormat, got %v", err)
		}
	})

	t.Run("corrupt key bits", func(t *testing.T) {
		skBlob, err := f.sk.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		// Flip a key digit to an out-of-range value. The payload starts
		// right after the fixed-size header.
		bad := append([]byte(nil), skBlob...)
		bad[len(bad)-2] = 0x7F
		if err := new(SecretKey).UnmarshalBinary(bad); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("expected ErrInvalidFormat, got %v", err)
		}
	})
}
