// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"

	"github.com/luxfi/tfhe/compute"
)

// KeyGenerator produces secret keys and the cloud keys derived from
// them. Randomness comes from the injected RNG; polynomial products in
// cloud-key generation run on the injected device.
type KeyGenerator struct {
	params Parameters
	rng    RNG
	dev    compute.Device
	tr     *compute.Transformer
}

// NewKeyGenerator creates a key generator. The polynomial degree is
// validated against the transform engine here, once, at setup.
func NewKeyGenerator(params Parameters, rng RNG, dev compute.Device) (*KeyGenerator, error) {
	tr, err := compute.NewTransformer(params.PolyDegree())
	if err != nil {
		return nil, err
	}
	return &KeyGenerator{params: params, rng: rng, dev: dev, tr: tr}, nil
}

// GenSecretKey draws a fresh secret key: n uniform LWE bits and k*N
// uniform TLWE bits.
func (kg *KeyGenerator) GenSecretKey() *SecretKey {
	p := kg.params
	sk := &SecretKey{
		params:  p,
		lweKey:  make([]int32, p.LweDimension()),
		tlweKey: make([]int32, p.MaskCount()*p.PolyDegree()),
	}
	for i := range sk.lweKey {
		sk.lweKey[i] = kg.rng.UniformBit()
	}
	for i := range sk.tlweKey {
		sk.tlweKey[i] = kg.rng.UniformBit()
	}
	return sk
}

// GenCloudKey derives the evaluation key from a secret key: one TRGSW
// encryption per LWE secret bit (the bootstrapping key, stored in the
// transform domain) and the key-switching key. With a deterministic RNG
// the output is bit-identical across invocations on the same stream
// position.
func (kg *KeyGenerator) GenCloudKey(sk *SecretKey) (*CloudKey, error) {
	if !sk.params.Equal(kg.params) {
		return nil, fmt.Errorf("%w: secret key generated for different parameters", ErrParamsMismatch)
	}

	ck := &CloudKey{params: kg.params}
	kg.genBootstrapKey(sk, ck)
	kg.genKeySwitchKey(sk, ck)
	return ck, nil
}

// GenKeyPair draws a secret key and derives its cloud key.
func (kg *KeyGenerator) GenKeyPair() (*SecretKey, *CloudKey, error) {
	sk := kg.GenSecretKey()
	ck, err := kg.GenCloudKey(sk)
	if err != nil {
		return nil, nil, err
	}
	return sk, ck, nil
}

// genBootstrapKey fills ck.bk with TRGSW encryptions of the LWE secret
// bits under the TLWE secret.
func (kg *KeyGenerator) genBootstrapKey(sk *SecretKey, ck *CloudKey) {
	p := kg.params
	n := p.PolyDegree()
	k := p.MaskCount()
	l := p.BootstrapLength()
	baseLog := p.BootstrapBaseLog()

	// Transform of the TLWE secret polynomials, computed once.
	skT := make([][]uint64, k)
	for u := 0; u < k; u++ {
		skT[u] = make([]uint64, n)
		compute.LiftSigned(sk.tlweKey[u*n:(u+1)*n], skT[u])
		kg.tr.Forward(skT[u])
	}

	enc := newTlweEncrypter(p, kg.tr, skT)

	ck.bk = make([]*transformedTrgsw, p.LweDimension())
	rows := make([]Torus32, (k+1)*l*(k+1)*n)
	for i := range ck.bk {
		bit := sk.lweKey[i]

		// Gadget rows in the torus domain: a zero encryption per row,
		// plus bit * Bg^-(j+1) on the w-th polynomial of row (w, j).
		for w := 0; w <= k; w++ {
			for j := 0; j < l; j++ {
				row := rows[((w*l+j)*(k+1))*n : ((w*l+j)*(k+1)+k+1)*n]
				enc.encryptZero(row, kg.rng)
				row[w*n] += Torus32(bit) << (32 - (j+1)*baseLog)
			}
		}

		// Lift every row polynomial and transform the whole sample as
		// one batch on the device.
		trgsw := newTransformedTrgsw(k, l, n)
		compute.LiftTorus(rows, trgsw.data)
		kg.tr.ForwardBatch(kg.dev, trgsw.data)
		ck.bk[i] = trgsw
	}
}

// genKeySwitchKey fills the key-switching key: for each TLWE secret
// coefficient and decomposition level, an LWE encryption of the scaled
// coefficient under the LWE secret.
func (kg *KeyGenerator) genKeySwitchKey(sk *SecretKey, ck *CloudKey) {
	p := kg.params
	kn := p.ExtractedDimension()
	t := p.KeySwitchLength()
	baseLog := p.KeySwitchBaseLog()
	n := p.LweDimension()

	ck.ksA = make([]Torus32, kn*t*n)
	ck.ksB = make([]Torus32, kn*t)

	for i := 0; i < kn; i++ {
		bit := sk.tlweKey[i]
		for j := 0; j < t; j++ {
			message := Torus32(bit) << (32 - (j+1)*baseLog)
			a := ck.ksA[(i*t+j)*n : (i*t+j+1)*n]
			ck.ksB[i*t+j] = lweEncrypt(a, message, sk.lweKey, p.LweStdDev(), kg.rng)
		}
	}
}

// tlweEncrypter encrypts zero TLWE samples given the transform of the
// secret polynomials.
type tlweEncrypter struct {
	params Parameters
	tr     *compute.Transformer
	skT    [][]uint64

	fa  []uint64
	acc []uint64
	tmp []Torus32
}

func newTlweEncrypter(params Parameters, tr *compute.Transformer, skT [][]uint64) *tlweEncrypter {
	n := params.PolyDegree()
	return &tlweEncrypter{
		params: params,
		tr:     tr,
		skT:    skT,
		fa:     make([]uint64, n),
		acc:    make([]uint64, n),
		tmp:    make([]Torus32, n),
	}
}

// encryptZero writes a fresh TLWE encryption of the zero polynomial into
// dst ((k+1)*N coefficients): uniform masks, Gaussian body noise, plus
// the mask-times-secret products computed exactly via the transform.
func (e *tlweEncrypter) encryptZero(dst []Torus32, rng RNG) {
	p := e.params
	n := p.PolyDegree()
	k := p.MaskCount()

	rng.FillUniformTorus32(dst[:k*n])
	body := dst[k*n : (k+1)*n]
	for i := range body {
		body[i] = rng.GaussianTorus32(0, p.TlweStdDev())
	}

	for i := range e.acc {
		e.acc[i] = 0
	}
	for u := 0; u < k; u++ {
		compute.LiftTorus(dst[u*n:(u+1)*n], e.fa)
		e.tr.Forward(e.fa)
		e.tr.MulAccumulate(e.fa, e.skT[u], e.acc)
	}
	e.tr.Inverse(e.acc)

	compute.UnliftTorus(e.acc, e.tmp)
	for i := range body {
		body[i] += e.tmp[i]
	}
}

// lweEncrypt writes a fresh mask into aOut and returns the body
// <mask, key> + mu + Gaussian noise.
func lweEncrypt(aOut []Torus32, mu Torus32, key []int32, stdDev float64, rng RNG) Torus32 {
	rng.FillUniformTorus32(aOut)
	b := rng.GaussianTorus32(mu, stdDev)
	for i, a := range aOut {
		b += a * Torus32(key[i])
	}
	return b
}

// lwePhase computes body - <mask, key>.
func lwePhase(a []Torus32, b Torus32, key []int32) Torus32 {
	phase := b
	for i, ai := range a {
		phase -= ai * Torus32(key[i])
	}
	return phase
}
