// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// NoiseEstimator measures the actual phase noise of ciphertexts against
// a secret key. It exists for benchmarking and parameter tuning; it
// cannot run on the cloud side.
type NoiseEstimator struct {
	params Parameters
	sk     *SecretKey
}

// NewNoiseEstimator builds an estimator for the given secret key.
func NewNoiseEstimator(sk *SecretKey) *NoiseEstimator {
	return &NoiseEstimator{params: sk.params, sk: sk}
}

// Deviations returns each sample's phase deviation from the nearest
// encoding point, as a fraction of the torus. A fresh encryption shows
// deviations around LweStdDev; a deviation approaching 1/16 signals the
// decoding margin is nearly spent.
func (ne *NoiseEstimator) Deviations(arr *LweSampleArray) ([]float64, error) {
	if arr.LweDimension() != ne.params.LweDimension() {
		return nil, fmt.Errorf("%w: sample dimension %d, key dimension %d",
			ErrParamsMismatch, arr.LweDimension(), ne.params.LweDimension())
	}
	out := make([]float64, arr.Count())
	for i := range out {
		phase := lwePhase(arr.mask(i), arr.B[i], ne.sk.lweKey)
		out[i] = math.Abs(TorusToDouble(phase - boolToMu(muToBool(phase))))
	}
	return out, nil
}

// NoiseReport summarizes the measured phase noise of a batch.
type NoiseReport struct {
	Mean   float64
	StdDev float64
	Max    float64
}

// Report computes summary statistics over a batch's phase deviations.
func (ne *NoiseEstimator) Report(arr *LweSampleArray) (NoiseReport, error) {
	devs, err := ne.Deviations(arr)
	if err != nil {
		return NoiseReport{}, err
	}
	mean, err := stats.Mean(devs)
	if err != nil {
		return NoiseReport{}, err
	}
	sd, err := stats.StandardDeviation(devs)
	if err != nil {
		return NoiseReport{}, err
	}
	max, err := stats.Max(devs)
	if err != nil {
		return NoiseReport{}, err
	}
	return NoiseReport{Mean: mean, StdDev: sd, Max: max}, nil
}
