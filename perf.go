// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"

	"github.com/luxfi/tfhe/compute"
)

// PerformanceParameters tunes how gate kernels are scheduled on a
// device without changing their semantics. Zero values select defaults
// for the device at resolution time.
type PerformanceParameters struct {
	// BootstrapParallelism is the number of samples bootstrapped
	// concurrently within one gate call. 0 uses the device width.
	BootstrapParallelism int
	// TransformBatch enables batched transform dispatch inside a single
	// bootstrap when set above 1: the accumulator's polynomials go to
	// the device together instead of running inline on the worker.
	// 0 and 1 keep transforms on the calling worker.
	TransformBatch int
	// MinBatchPerWorker keeps tiny arrays from fanning out across all
	// workers; batches smaller than this run on one worker. 0 uses 1.
	MinBatchPerWorker int
}

// resolvedPerf is the concrete kernel configuration an Evaluator runs
// with; it is fixed before the first gate call.
type resolvedPerf struct {
	bootstrapWorkers  int
	transformBatch    int
	minBatchPerWorker int
}

// Resolve binds the tuning knobs to a device. Negative values are
// configuration errors.
func (pp PerformanceParameters) Resolve(dev compute.Device) (resolvedPerf, error) {
	if pp.BootstrapParallelism < 0 || pp.TransformBatch < 0 || pp.MinBatchPerWorker < 0 {
		return resolvedPerf{}, fmt.Errorf("%w: negative performance parameter", ErrInvalidParams)
	}
	r := resolvedPerf{
		bootstrapWorkers:  pp.BootstrapParallelism,
		transformBatch:    pp.TransformBatch,
		minBatchPerWorker: pp.MinBatchPerWorker,
	}
	if r.bootstrapWorkers == 0 {
		r.bootstrapWorkers = dev.Workers()
	}
	if r.minBatchPerWorker == 0 {
		r.minBatchPerWorker = 1
	}
	return r, nil
}
