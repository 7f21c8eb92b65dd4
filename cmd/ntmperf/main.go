package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/addressing"
	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/kernels"
	ntmruntime "github.com/sbl8/ntm/runtime"
)

var (
	testType = flag.String("test", "all", "Test type: all, kernel, address, step, engine")
	slots    = flag.Int("slots", 128, "Memory slots")
	width    = flag.Int("width", 20, "Memory slot width")
	shift    = flag.Int("shift", 3, "Shift range")
	heads    = flag.Int("heads", 1, "Head pairs")
	batch    = flag.Int("batch", 16, "Batch size")
	iter     = flag.Int("iter", 1000, "Number of iterations")
	verbose  = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()

	cfg := core.Config{Slots: *slots, Width: *width, ShiftRange: *shift, Heads: *heads}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("NTM Performance Analysis Tool\n")
	fmt.Printf("=============================\n")
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("CPUs: %d\n", runtime.NumCPU())
	fmt.Printf("Config: %s, batch %d\n", cfg, *batch)
	fmt.Printf("Iterations: %d\n", *iter)
	fmt.Printf("\n")

	rng := rand.New(rand.NewSource(1))
	switch *testType {
	case "all":
		runKernelTests(rng, cfg)
		runAddressTests(rng, cfg)
		runStepTests(rng, cfg)
		runEngineTests(rng, cfg)
	case "kernel":
		runKernelTests(rng, cfg)
	case "address":
		runAddressTests(rng, cfg)
	case "step":
		runStepTests(rng, cfg)
	case "engine":
		runEngineTests(rng, cfg)
	default:
		fmt.Printf("Unknown test type: %s\n", *testType)
		os.Exit(1)
	}
}

func runKernelTests(rng *rand.Rand, cfg core.Config) {
	fmt.Printf("Kernel Performance\n")
	fmt.Printf("------------------\n")

	n := cfg.Slots
	w := generate(rng, n)
	kernels.Softmax(w)
	shiftW := generate(rng, cfg.ShiftRange)
	kernels.Softmax(shiftW)
	aligned := make([]float64, n)
	kernels.AlignShift(aligned, shiftW)
	dst := make([]float64, n)
	a, b := generate(rng, cfg.Width), generate(rng, cfg.Width)

	softmax := timeIt(func() {
		copy(dst, w)
		kernels.Softmax(dst)
	})
	conv := timeIt(func() { kernels.CircularConvolve(dst, w, aligned) })
	sharpen := timeIt(func() {
		copy(dst, w)
		kernels.Normalize(dst, kernels.Sharpen(dst, 10))
	})
	cosine := timeIt(func() { _ = kernels.CosineSimilarity(a, b) })

	fmt.Printf("Softmax (%d):              %v (%.2f Mops/s)\n", n, softmax, throughput(n, softmax))
	fmt.Printf("Circular convolve (%d):    %v (%.2f Mops/s)\n", n, conv, throughput(n*n, conv))
	fmt.Printf("Sharpen+normalize (%d):    %v (%.2f Mops/s)\n", n, sharpen, throughput(n, sharpen))
	fmt.Printf("Cosine similarity (%d):    %v (%.2f Mops/s)\n", cfg.Width, cosine, throughput(cfg.Width, cosine))
	fmt.Printf("\n")
}

func runAddressTests(rng *rand.Rand, cfg core.Config) {
	fmt.Printf("Addressing Performance\n")
	fmt.Printf("----------------------\n")

	dec, err := addressing.NewDecoder(cfg)
	if err != nil {
		fmt.Printf("Decoder: %v\n", err)
		return
	}
	gen, err := addressing.NewGenerator(cfg)
	if err != nil {
		fmt.Printf("Generator: %v\n", err)
		return
	}
	st, err := ntmruntime.InitialState(cfg, *batch, rng)
	if err != nil {
		fmt.Printf("Initial state: %v\n", err)
		return
	}
	raw := generateMatrix(rng, *batch, cfg.InputSize())
	params, err := dec.Decode(raw)
	if err != nil {
		fmt.Printf("Decode: %v\n", err)
		return
	}

	decode := timeIt(func() { _, _ = dec.Decode(raw) })
	address := timeIt(func() { _, _ = gen.Address(params.Read[0], st.Heads[0].Read, st.Memory) })

	fmt.Printf("Decode (%dx%d):           %v/op\n", *batch, cfg.InputSize(), decode/time.Duration(*iter))
	fmt.Printf("Address one head:          %v/op\n", address/time.Duration(*iter))
	fmt.Printf("\n")
}

func runStepTests(rng *rand.Rand, cfg core.Config) {
	fmt.Printf("Step Performance\n")
	fmt.Printf("----------------\n")

	cell, err := ntmruntime.NewCell(cfg, ntmruntime.OutputConcat)
	if err != nil {
		fmt.Printf("Cell: %v\n", err)
		return
	}
	st, err := ntmruntime.InitialState(cfg, *batch, rng)
	if err != nil {
		fmt.Printf("Initial state: %v\n", err)
		return
	}
	raw := generateMatrix(rng, *batch, cfg.InputSize())

	elapsed := timeIt(func() {
		if _, next, err := cell.Step(raw, st); err == nil {
			st = next
		}
	})
	perStep := elapsed / time.Duration(*iter)
	fmt.Printf("Cell step:                 %v/op (%.0f steps/s)\n", perStep, float64(*iter)/elapsed.Seconds())
	if *verbose {
		fmt.Printf("  per batch element:       %v\n", perStep/time.Duration(*batch))
	}
	fmt.Printf("\n")
}

func runEngineTests(rng *rand.Rand, cfg core.Config) {
	fmt.Printf("Engine Scaling\n")
	fmt.Printf("--------------\n")

	const steps = 32
	inputs := make([]*mat.Dense, steps)
	for i := range inputs {
		inputs[i] = generateMatrix(rng, *batch, cfg.InputSize())
	}
	initial, err := ntmruntime.InitialState(cfg, *batch, rng)
	if err != nil {
		fmt.Printf("Initial state: %v\n", err)
		return
	}

	runs := *iter / 100
	if runs < 1 {
		runs = 1
	}
	var baseline time.Duration
	for workers := 1; workers <= runtime.NumCPU() && workers <= *batch; workers *= 2 {
		engine, err := ntmruntime.NewEngine(cfg, &ntmruntime.Options{Workers: workers, EnableStats: true})
		if err != nil {
			fmt.Printf("Engine: %v\n", err)
			return
		}
		for i := 0; i < runs; i++ {
			if _, err := engine.Run(context.Background(), inputs, initial); err != nil {
				fmt.Printf("Run: %v\n", err)
				return
			}
		}
		avg := engine.Stats().AverageLatency
		if workers == 1 {
			baseline = avg
		}
		fmt.Printf("Workers %-3d %d steps:      %v/run (%.2fx)\n", workers, steps, avg, float64(baseline)/float64(avg))
	}
	fmt.Printf("\n")
}

func timeIt(fn func()) time.Duration {
	start := time.Now()
	for i := 0; i < *iter; i++ {
		fn()
	}
	return time.Since(start)
}

func throughput(elements int, d time.Duration) float64 {
	return float64(elements*(*iter)) / d.Seconds() / 1e6
}

func generate(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func generateMatrix(rng *rand.Rand, r, c int) *mat.Dense {
	return mat.NewDense(r, c, generate(rng, r*c))
}
