// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package tfhe implements TFHE (Torus Fully Homomorphic Encryption)
// gate bootstrapping for boolean circuit evaluation on encrypted data.
//
// Plaintext bits live at +-1/8 on the discretized torus. Every
// two-input gate is a public linear combination of its operands
// followed by a bootstrap that refreshes noise and selects the gate's
// truth value, so circuits of any depth decrypt correctly. Polynomial
// arithmetic runs through an exact negacyclic number-theoretic
// transform; kernels batch over arbitrary ciphertext array shapes and
// dispatch to a pluggable compute device.
package tfhe

import (
	"fmt"
	"io"

	"github.com/luxfi/tfhe/compute"
)

// Context bundles a parameter set, a compute device, and a randomness
// source behind a single entry point. It is the recommended API for
// applications; the lower-level KeyGenerator, Encryptor, and Evaluator
// types remain available for callers that need finer control.
type Context struct {
	params Parameters
	dev    compute.Device
	rng    RNG
}

// ContextOption customizes a Context.
type ContextOption func(*Context)

// WithDevice selects the compute device. The default is a parallel
// device sized to the machine.
func WithDevice(dev compute.Device) ContextOption {
	return func(c *Context) { c.dev = dev }
}

// WithRNG selects the randomness source. The default is a secure RNG;
// tests pass a DeterministicRNG for reproducibility.
func WithRNG(rng RNG) ContextOption {
	return func(c *Context) { c.rng = rng }
}

// NewContext builds a context from a parameter literal.
func NewContext(lit ParametersLiteral, opts ...ContextOption) (*Context, error) {
	params, err := NewParameters(lit)
	if err != nil {
		return nil, err
	}
	c := &Context{params: params}
	for _, opt := range opts {
		opt(c)
	}
	if c.dev == nil {
		c.dev = compute.NewParallelDevice(0)
	}
	if c.rng == nil {
		rng, err := NewSecureRNG()
		if err != nil {
			return nil, fmt.Errorf("context rng: %w", err)
		}
		c.rng = rng
	}
	return c, nil
}

// Parameters returns the context's scheme parameters.
func (c *Context) Parameters() Parameters { return c.params }

// Device returns the context's compute device.
func (c *Context) Device() compute.Device { return c.dev }

// MakeSecretKey samples a fresh secret key.
func (c *Context) MakeSecretKey() (*SecretKey, error) {
	kg, err := NewKeyGenerator(c.params, c.rng, c.dev)
	if err != nil {
		return nil, err
	}
	return kg.GenSecretKey(), nil
}

// MakeCloudKey derives the evaluation key material from a secret key.
func (c *Context) MakeCloudKey(sk *SecretKey) (*CloudKey, error) {
	kg, err := NewKeyGenerator(c.params, c.rng, c.dev)
	if err != nil {
		return nil, err
	}
	return kg.GenCloudKey(sk)
}

// MakeKeyPair samples a secret key and its cloud key together.
func (c *Context) MakeKeyPair() (*SecretKey, *CloudKey, error) {
	kg, err := NewKeyGenerator(c.params, c.rng, c.dev)
	if err != nil {
		return nil, nil, err
	}
	return kg.GenKeyPair()
}

// Encrypt encrypts a flat bit vector under the secret key.
func (c *Context) Encrypt(sk *SecretKey, bits []bool) (*LweSampleArray, error) {
	return NewEncryptor(sk, c.rng).Encrypt(bits)
}

// EncryptShaped encrypts bits into an array with the given logical
// shape; len(bits) must equal the shape's product.
func (c *Context) EncryptShaped(sk *SecretKey, bits []bool, shape []int) (*LweSampleArray, error) {
	return NewEncryptor(sk, c.rng).EncryptShaped(bits, shape)
}

// Decrypt decrypts every sample of the array.
func (c *Context) Decrypt(sk *SecretKey, arr *LweSampleArray) ([]bool, error) {
	return NewDecryptor(sk).Decrypt(arr)
}

// MakeVirtualMachine builds a gate evaluator bound to this context's
// device.
func (c *Context) MakeVirtualMachine(ck *CloudKey, pp PerformanceParameters) (*VirtualMachine, error) {
	ev, err := NewEvaluator(ck, c.dev, pp)
	if err != nil {
		return nil, err
	}
	return &VirtualMachine{Evaluator: ev}, nil
}

// LoadSecretKey reads a serialized secret key and checks it against the
// context's parameters.
func (c *Context) LoadSecretKey(r io.Reader) (*SecretKey, error) {
	sk := new(SecretKey)
	if _, err := sk.ReadFrom(r); err != nil {
		return nil, err
	}
	if !sk.params.Equal(c.params) {
		return nil, fmt.Errorf("%w: serialized key parameters differ from context", ErrParamsMismatch)
	}
	return sk, nil
}

// LoadCloudKey reads a serialized cloud key and checks it against the
// context's parameters.
func (c *Context) LoadCloudKey(r io.Reader) (*CloudKey, error) {
	ck := new(CloudKey)
	if _, err := ck.ReadFrom(r); err != nil {
		return nil, err
	}
	if !ck.params.Equal(c.params) {
		return nil, fmt.Errorf("%w: serialized key parameters differ from context", ErrParamsMismatch)
	}
	return ck, nil
}

// LoadCiphertext reads a serialized sample array and checks its
// dimension against the context's parameters.
func (c *Context) LoadCiphertext(r io.Reader) (*LweSampleArray, error) {
	arr := new(LweSampleArray)
	if _, err := arr.ReadFrom(r); err != nil {
		return nil, err
	}
	if arr.n != c.params.LweDimension() {
		return nil, fmt.Errorf("%w: ciphertext dimension %d, context dimension %d",
			ErrParamsMismatch, arr.n, c.params.LweDimension())
	}
	return arr, nil
}

// VirtualMachine exposes the gate set over ciphertext arrays. It is a
// thin view over Evaluator that adds uniform dispatch by gate
// enumeration for job runners.
type VirtualMachine struct {
	*Evaluator
}

// Apply evaluates gate g over inputs into dest. The number of inputs
// must match g's arity; CONSTANT takes no inputs and fills dest with
// trivial encryptions of constant.
func (vm *VirtualMachine) Apply(g Gate, dest *LweSampleArray, constant bool, inputs ...*LweSampleArray) error {
	if len(inputs) != g.Arity() {
		return fmt.Errorf("%w: %v takes %d inputs, got %d", ErrUnknownGate, g, g.Arity(), len(inputs))
	}
	switch g {
	case GateNOT:
		return vm.NotAssign(dest, inputs[0])
	case GateCOPY:
		return vm.CopyAssign(dest, inputs[0])
	case GateCONSTANT:
		mu := boolToMu(constant)
		clearTorus(dest.A)
		for i := range dest.B {
			dest.B[i] = mu
			dest.Variances[i] = 0
		}
		return nil
	case GateMUX:
		return vm.MuxAssign(dest, inputs[0], inputs[1], inputs[2])
	default:
		return vm.GateAssign(g, dest, inputs[0], inputs[1])
	}
}
