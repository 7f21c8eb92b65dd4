package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	goruntime "runtime"
	"strings"

	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/logging"
	"github.com/sbl8/ntm/model"
	ntmruntime "github.com/sbl8/ntm/runtime"
)

func main() {
	var (
		modelPath  = flag.String("model", "", "Path to the YAML cell description")
		inputPath  = flag.String("input", "", "Path to the YAML parameter sequence")
		statePath  = flag.String("state", "", "Resume from a checkpoint written by -checkpoint")
		checkpoint = flag.String("checkpoint", "", "Write the final state to this file")
		workers    = flag.Int("workers", goruntime.NumCPU(), "Number of worker goroutines")
		seed       = flag.Int64("seed", 0, "Seed for the initial state (0 uses the model seed)")
		output     = flag.String("output", "", "Override the output mode: concat, sum, first")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("ntmrun - NTM sequence runner v1.0.0")
		fmt.Printf("Built with Go %s\n", goruntime.Version())
		return
	}
	if *modelPath == "" || *inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -model cell.yaml -input steps.yaml [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(*logLevel),
		Format:    *logFormat,
		Output:    os.Stderr,
		Component: "ntmrun",
	})

	spec, err := model.Load(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	if *output != "" {
		spec.Output = *output
	}
	mode, err := spec.OutputMode()
	if err != nil {
		log.Fatalf("Invalid output mode: %v", err)
	}
	cfg := spec.Config()
	logger.Info("model loaded", "name", spec.Name, "config", cfg.String(), "output", mode.String())

	seq, err := model.LoadSequence(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load input: %v", err)
	}
	inputs, err := seq.Matrices(cfg)
	if err != nil {
		log.Fatalf("Invalid input: %v", err)
	}

	initial, err := initialState(cfg, seq.Batch(), *statePath, pickSeed(*seed, spec.Seed))
	if err != nil {
		log.Fatalf("Failed to build initial state: %v", err)
	}

	engine, err := ntmruntime.NewEngine(cfg, &ntmruntime.Options{
		Workers:     *workers,
		Output:      mode,
		EnableStats: true,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := engine.Run(ctx, inputs, initial)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	for t, out := range res.Outputs {
		r, _ := out.Fused.Dims()
		for b := 0; b < r; b++ {
			fmt.Printf("step %d batch %d: %s\n", t, b, formatRow(out.Fused.RawRowView(b)))
		}
	}

	if *checkpoint != "" {
		data, err := core.MarshalState(res.Final)
		if err != nil {
			log.Fatalf("Failed to encode final state: %v", err)
		}
		if err := os.WriteFile(*checkpoint, data, 0o644); err != nil {
			log.Fatalf("Failed to write checkpoint: %v", err)
		}
		logger.Info("checkpoint written", "path", *checkpoint, "bytes", len(data))
	}
}

func pickSeed(flagSeed, specSeed int64) int64 {
	if flagSeed != 0 {
		return flagSeed
	}
	if specSeed != 0 {
		return specSeed
	}
	return rand.Int63()
}

// initialState resumes from a checkpoint when path is set, otherwise draws a
// fresh starting state.
func initialState(cfg core.Config, batch int, path string, seed int64) (core.State, error) {
	if path == "" {
		return ntmruntime.InitialState(cfg, batch, rand.New(rand.NewSource(seed)))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return core.State{}, err
	}
	st, err := core.UnmarshalState(data)
	if err != nil {
		return core.State{}, err
	}
	if st.Batch() != batch {
		return core.State{}, fmt.Errorf("%w: checkpoint batch %d, input batch %d", core.ErrShapeMismatch, st.Batch(), batch)
	}
	return st, st.Validate(cfg)
}

func formatRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
