// Command tfhe-bench measures gate throughput and output noise on the
// local machine.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/compute"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		paramsName = flag.String("params", "std128", "parameter set (std128 or test)")
		batch      = flag.Int("batch", 64, "gates per batch")
		rounds     = flag.Int("rounds", 4, "timed batches")
		parallel   = flag.Int("parallelism", 0, "bootstraps evaluated concurrently (0 = all cores)")
		seed       = flag.Uint64("seed", 1, "deterministic RNG seed")
	)
	flag.Parse()

	var lit tfhe.ParametersLiteral
	switch *paramsName {
	case "std128":
		lit = tfhe.ParamsSTD128
	case "test":
		lit = tfhe.ParamsTest
	default:
		return fmt.Errorf("unknown parameter set %q", *paramsName)
	}

	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], *seed)
	rng, err := tfhe.NewDeterministicRNG(seedBytes[:])
	if err != nil {
		return err
	}

	dev := compute.NewParallelDevice(0)
	ctx, err := tfhe.NewContext(lit, tfhe.WithDevice(dev), tfhe.WithRNG(rng))
	if err != nil {
		return err
	}

	fmt.Printf("params=%s device=%s batch=%d\n", *paramsName, dev.Name(), *batch)

	start := time.Now()
	sk, ck, err := ctx.MakeKeyPair()
	if err != nil {
		return err
	}
	fmt.Printf("keygen: %v\n", time.Since(start))

	vm, err := ctx.MakeVirtualMachine(ck, tfhe.PerformanceParameters{
		BootstrapParallelism: *parallel,
	})
	if err != nil {
		return err
	}

	bits := make([]bool, *batch)
	for i := range bits {
		bits[i] = i%3 == 0
	}
	a, err := ctx.Encrypt(sk, bits)
	if err != nil {
		return err
	}
	b, err := ctx.Encrypt(sk, bits)
	if err != nil {
		return err
	}

	// Warm up once so pool allocations are out of the timed loop.
	out, err := vm.Nand(a, b)
	if err != nil {
		return err
	}

	start = time.Now()
	for r := 0; r < *rounds; r++ {
		if err := vm.GateAssign(tfhe.GateNAND, out, a, b); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	total := *rounds * *batch
	fmt.Printf("nand: %d gates in %v (%.1f gates/s, %v/gate)\n",
		total, elapsed,
		float64(total)/elapsed.Seconds(),
		elapsed/time.Duration(total))

	report, err := tfhe.NewNoiseEstimator(sk).Report(out)
	if err != nil {
		return err
	}
	fmt.Printf("output noise: mean=%.3e sd=%.3e max=%.3e (margin 1/16=%.3e)\n",
		report.Mean, report.StdDev, report.Max, 1.0/16)
	return nil
}
