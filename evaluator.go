// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"
	"math"
	"sync"

	"github.com/luxfi/tfhe/compute"
)

// Evaluator evaluates boolean gates on encrypted data using a cloud
// key. It holds no secret material and may be shared between
// goroutines; every gate call allocates its per-sample scratch from an
// internal pool.
type Evaluator struct {
	params Parameters
	ck     *CloudKey
	dev    compute.Device
	tr     *compute.Transformer
	perf   resolvedPerf

	// testVector is the constant polynomial with every coefficient set
	// to mu. Blind rotation against it maps any phase in (0, 1/2) to
	// +mu and any phase in (-1/2, 0) to -mu.
	testVector []Torus32

	// Output noise variances for diagnostics, estimated from the
	// parameter set. Bootstrapped outputs all carry bootVariance
	// regardless of input noise; MUX pays for two bootstraps.
	bootVariance float64
	muxVariance  float64

	scratch sync.Pool
}

// NewEvaluator builds an evaluator for the given cloud key on the given
// device. The zero PerformanceParameters value picks defaults sized to
// the device.
func NewEvaluator(ck *CloudKey, dev compute.Device, pp PerformanceParameters) (*Evaluator, error) {
	perf, err := pp.Resolve(dev)
	if err != nil {
		return nil, err
	}
	tr, err := compute.NewTransformer(ck.params.PolyDegree())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	p := ck.params
	e := &Evaluator{
		params: p,
		ck:     ck,
		dev:    dev,
		tr:     tr,
		perf:   perf,
	}
	e.testVector = make([]Torus32, p.PolyDegree())
	for i := range e.testVector {
		e.testVector[i] = encodingMu
	}
	e.bootVariance, e.muxVariance = estimateGateVariance(p)
	e.scratch.New = func() any { return newBootstrapScratch(p) }
	return e, nil
}

// Parameters returns the evaluator's scheme parameters.
func (e *Evaluator) Parameters() Parameters { return e.params }

// Device returns the compute device the evaluator dispatches to.
func (e *Evaluator) Device() compute.Device { return e.dev }

// EmptyCiphertext allocates a zeroed destination array of the given
// shape, suitable as a gate destination.
func (e *Evaluator) EmptyCiphertext(shape ...int) (*LweSampleArray, error) {
	return NewLweSampleArray(e.params, shape...)
}

// runBatch dispatches fn over count samples, giving each worker its own
// scratch buffer. Small batches run on a single worker so the
// goroutine fan-out never dominates the per-sample cost.
func (e *Evaluator) runBatch(count int, fn func(i int, s *bootstrapScratch)) {
	slots := e.perf.bootstrapWorkers
	if slots > count {
		slots = count
	}
	if count <= e.perf.minBatchPerWorker {
		slots = 1
	}
	e.dev.Run(slots, func(slot int) {
		s := e.scratch.Get().(*bootstrapScratch)
		defer e.scratch.Put(s)
		for i := slot; i < count; i += slots {
			fn(i, s)
		}
	})
}

// ========== Generic gate dispatch ==========

// Gate evaluates a two-input bootstrapped gate over a and b into a
// freshly allocated result. NOT, COPY, CONSTANT, and MUX have their own
// entry points; passing them here returns ErrUnknownGate.
func (e *Evaluator) Gate(g Gate, a, b *LweSampleArray) (*LweSampleArray, error) {
	dest, err := NewLweSampleArray(e.params, a.shape...)
	if err != nil {
		return nil, err
	}
	if err := e.GateAssign(g, dest, a, b); err != nil {
		return nil, err
	}
	return dest, nil
}

// GateAssign evaluates a two-input bootstrapped gate into dest. The
// destination may alias either input.
func (e *Evaluator) GateAssign(g Gate, dest, a, b *LweSampleArray) error {
	recipe, ok := gateRecipes[g]
	if !ok {
		return fmt.Errorf("%w: %v is not a two-input bootstrapped gate", ErrUnknownGate, g)
	}
	if err := checkOperands(dest, a, b); err != nil {
		return err
	}
	if dest.n != e.params.LweDimension() {
		return fmt.Errorf("%w: sample dimension %d, key dimension %d",
			ErrParamsMismatch, dest.n, e.params.LweDimension())
	}

	n := e.params.LweDimension()
	ca := Torus32(recipe.ca)
	cb := Torus32(recipe.cb)
	e.runBatch(a.Count(), func(i int, s *bootstrapScratch) {
		aA, bA := a.mask(i), b.mask(i)
		for u := 0; u < n; u++ {
			s.lweA[u] = ca*aA[u] + cb*bA[u]
		}
		body := recipe.offset + ca*a.B[i] + cb*b.B[i]

		extB := e.blindRotateExtract(s.lweA, body, s.extA, s)
		dest.B[i] = e.keySwitchInto(dest.mask(i), s.extA, extB)
		dest.Variances[i] = e.bootVariance
	})
	return nil
}

// ========== Named gates ==========

// Nand evaluates NOT(a AND b).
func (e *Evaluator) Nand(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateNAND, a, b)
}

// And evaluates a AND b.
func (e *Evaluator) And(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateAND, a, b)
}

// Or evaluates a OR b.
func (e *Evaluator) Or(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateOR, a, b)
}

// Nor evaluates NOT(a OR b).
func (e *Evaluator) Nor(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateNOR, a, b)
}

// Xor evaluates a XOR b.
func (e *Evaluator) Xor(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateXOR, a, b)
}

// Xnor evaluates NOT(a XOR b).
func (e *Evaluator) Xnor(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateXNOR, a, b)
}

// AndNY evaluates (NOT a) AND b.
func (e *Evaluator) AndNY(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateANDNY, a, b)
}

// AndYN evaluates a AND (NOT b).
func (e *Evaluator) AndYN(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateANDYN, a, b)
}

// OrNY evaluates (NOT a) OR b.
func (e *Evaluator) OrNY(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateORNY, a, b)
}

// OrYN evaluates a OR (NOT b).
func (e *Evaluator) OrYN(a, b *LweSampleArray) (*LweSampleArray, error) {
	return e.Gate(GateORYN, a, b)
}

// ========== Linear gates (no bootstrap) ==========

// Not negates every sample. Negation is linear on the torus, so the
// output noise equals the input noise and no bootstrap runs.
func (e *Evaluator) Not(a *LweSampleArray) (*LweSampleArray, error) {
	dest, err := NewLweSampleArray(e.params, a.shape...)
	if err != nil {
		return nil, err
	}
	if err := e.NotAssign(dest, a); err != nil {
		return nil, err
	}
	return dest, nil
}

// NotAssign negates every sample of a into dest. The destination may
// alias the source.
func (e *Evaluator) NotAssign(dest, a *LweSampleArray) error {
	if err := checkOperands(dest, a); err != nil {
		return err
	}
	for i := range a.A {
		dest.A[i] = -a.A[i]
	}
	for i := range a.B {
		dest.B[i] = -a.B[i]
		dest.Variances[i] = a.Variances[i]
	}
	return nil
}

// CopyAssign copies every sample of a into dest without changing the
// noise level.
func (e *Evaluator) CopyAssign(dest, a *LweSampleArray) error {
	if err := checkOperands(dest, a); err != nil {
		return err
	}
	copy(dest.A, a.A)
	copy(dest.B, a.B)
	copy(dest.Variances, a.Variances)
	return nil
}

// Constant returns a trivial, noiseless encryption of the given bit in
// every slot of the shape. The result is valid under any secret key
// with matching parameters and hides nothing.
func (e *Evaluator) Constant(value bool, shape ...int) (*LweSampleArray, error) {
	dest, err := NewLweSampleArray(e.params, shape...)
	if err != nil {
		return nil, err
	}
	mu := boolToMu(value)
	for i := range dest.B {
		dest.B[i] = mu
	}
	return dest, nil
}

// ========== MUX ==========

// Mux evaluates, slot by slot, "if c then a else b". The construction
// bootstraps c AND a and (NOT c) AND b separately in the extracted
// dimension, sums them with a +1/8 rebias, and key-switches once, so a
// MUX costs two bootstraps and one key switch.
func (e *Evaluator) Mux(c, a, b *LweSampleArray) (*LweSampleArray, error) {
	dest, err := NewLweSampleArray(e.params, c.shape...)
	if err != nil {
		return nil, err
	}
	if err := e.MuxAssign(dest, c, a, b); err != nil {
		return nil, err
	}
	return dest, nil
}

// MuxAssign evaluates MUX(c, a, b) into dest. The destination may alias
// any input.
func (e *Evaluator) MuxAssign(dest, c, a, b *LweSampleArray) error {
	if err := checkOperands(dest, c, a, b); err != nil {
		return err
	}
	if dest.n != e.params.LweDimension() {
		return fmt.Errorf("%w: sample dimension %d, key dimension %d",
			ErrParamsMismatch, dest.n, e.params.LweDimension())
	}

	n := e.params.LweDimension()
	e.runBatch(c.Count(), func(i int, s *bootstrapScratch) {
		cA, aA, bA := c.mask(i), a.mask(i), b.mask(i)

		// u1 = bootstrap(-1/8 + c + a): +1/8 iff c AND a.
		for u := 0; u < n; u++ {
			s.lweA[u] = cA[u] + aA[u]
		}
		body1 := e.blindRotateExtract(s.lweA, encodingMuNeg+c.B[i]+a.B[i], s.extA, s)

		// u2 = bootstrap(-1/8 - c + b): +1/8 iff (NOT c) AND b.
		for u := 0; u < n; u++ {
			s.lweA[u] = bA[u] - cA[u]
		}
		body2 := e.blindRotateExtract(s.lweA, encodingMuNeg-c.B[i]+b.B[i], s.extA2, s)

		// The branches are mutually exclusive, so u1 + u2 + 1/8 lands
		// on +1/8 when the selected branch is true and -1/8 otherwise.
		for u := range s.extA {
			s.extA[u] += s.extA2[u]
		}
		dest.B[i] = e.keySwitchInto(dest.mask(i), s.extA, body1+body2+encodingMu)
		dest.Variances[i] = e.muxVariance
	})
	return nil
}

// ========== Noise model ==========

// estimateGateVariance computes the standard TFHE upper bounds on the
// phase variance of a bootstrapped-and-key-switched sample, and of a
// MUX output. These feed the Variances diagnostics field only; decoding
// never consults them.
func estimateGateVariance(p Parameters) (boot, mux float64) {
	n := float64(p.LweDimension())
	N := float64(p.PolyDegree())
	k := float64(p.MaskCount())
	l := float64(p.BootstrapLength())

	// Blind rotation: n external products, each contributing the
	// decomposition rounding floor plus the amplified key noise.
	halfBase := math.Exp2(float64(p.BootstrapBaseLog() - 1))
	decompErr := math.Exp2(-2 * float64(p.BootstrapLength()*p.BootstrapBaseLog()))
	sigmaBK := p.TlweStdDev()
	rotation := n * ((k+1)*l*N*halfBase*halfBase*sigmaBK*sigmaBK +
		(k*N+1)*decompErr/4)

	// Key switch: k*N decompositions against keys with LweStdDev noise
	// plus the truncation of the discarded low bits.
	t := float64(p.KeySwitchLength())
	sigmaKS := p.LweStdDev()
	ksErr := math.Exp2(-2 * float64(p.KeySwitchLength()*p.KeySwitchBaseLog()))
	keySwitch := k*N*t*sigmaKS*sigmaKS + k*N*ksErr/12

	boot = rotation + keySwitch
	mux = 2*rotation + keySwitch
	return boot, mux
}
