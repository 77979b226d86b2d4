// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package compute provides the execution backend for the TFHE engine:
// a device abstraction for batched kernel dispatch and the exact
// negacyclic number-theoretic transform used for polynomial products.
//
// The core algorithms are written once against the Device interface;
// backends differ only in how they schedule the elementwise kernels.
package compute

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// Device is an opaque execution backend. A kernel is an elementwise
// function over a batch index; Run dispatches it over [0, n) and returns
// once every index has been processed, so operations issued on the same
// buffers are serialized in issue order. Kernels dispatched in a single
// Run call must touch disjoint state per index.
type Device interface {
	// Name identifies the backend and its capabilities.
	Name() string
	// Workers reports the degree of hardware parallelism the device
	// schedules kernels onto.
	Workers() int
	// Run dispatches kernel over batch indices [0, n).
	Run(n int, kernel func(i int))
	// Sync blocks until all issued work has completed.
	Sync()
}

// SerialDevice executes kernels inline on the calling goroutine.
// It is the reference backend: deterministic scheduling, no parallelism.
type SerialDevice struct{}

// NewSerialDevice creates the single-threaded reference backend.
func NewSerialDevice() *SerialDevice { return &SerialDevice{} }

func (d *SerialDevice) Name() string { return "serial" }
func (d *SerialDevice) Workers() int { return 1 }
func (d *SerialDevice) Sync()        {}
func (d *SerialDevice) Run(n int, kernel func(i int)) {
	for i := 0; i < n; i++ {
		kernel(i)
	}
}

// ParallelDevice schedules kernels across a fixed pool of OS threads
// via goroutines. Batches are chunked so that each worker processes a
// contiguous index range, which keeps per-sample scratch buffers hot.
type ParallelDevice struct {
	workers int
	name    string
}

// NewParallelDevice creates a backend with the given worker count.
// workers <= 0 selects runtime.NumCPU().
func NewParallelDevice(workers int) *ParallelDevice {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &ParallelDevice{
		workers: workers,
		name:    fmt.Sprintf("parallel(%d,%s)", workers, cpuFeatures()),
	}
}

func (d *ParallelDevice) Name() string { return d.name }
func (d *ParallelDevice) Workers() int { return d.workers }
func (d *ParallelDevice) Sync()        {}

func (d *ParallelDevice) Run(n int, kernel func(i int)) {
	if n == 0 {
		return
	}
	workers := d.workers
	if workers > n {
		workers = n
	}
	if workers == 1 {
		for i := 0; i < n; i++ {
			kernel(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				kernel(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// cpuFeatures reports the vector extensions the host exposes, for
// device identification in logs and performance reports.
func cpuFeatures() string {
	switch {
	case cpu.X86.HasAVX512F:
		return "avx512"
	case cpu.X86.HasAVX2:
		return "avx2"
	case cpu.ARM64.HasASIMD:
		return "neon"
	default:
		return "scalar"
	}
}
