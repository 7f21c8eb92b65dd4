// Package ntm implements the memory-addressing core of a Neural Turing Machine.
//
// A Neural Turing Machine couples a controller with an external memory of N
// slots, each an M-dimensional vector. Every time step the controller emits a
// flat block of raw head parameters; this module turns those parameters into
// soft addresses over the memory, applies erase/add writes, and returns the
// weighted reads. The controller itself is out of scope.
//
// # Architecture Overview
//
// Each step runs the same fixed pipeline per head:
//
//   - Decode: split raw parameters into key, shift, gamma, beta, gate (plus
//     add and erase for write heads) and squash each into its valid range
//   - Content addressing: cosine similarity against the previous memory,
//     scaled by beta and normalized with a softmax
//   - Interpolation: blend with the previous address through the gate
//   - Shift: circular convolution with the shift distribution
//   - Sharpen: raise to gamma and renormalize
//
// Write heads update memory in head order; read heads then read from the
// updated memory. The state (memory plus each head's previous read and write
// addresses) is an explicit immutable value passed into and returned from
// every step.
//
// # Basic Usage
//
//	cfg := core.Config{Slots: 128, Width: 20, ShiftRange: 3, Heads: 1}
//	engine, err := runtime.NewEngine(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	initial, err := runtime.InitialState(cfg, batch, rand.New(rand.NewSource(1)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := engine.Run(ctx, inputs, initial) // inputs[t] is batch × cfg.InputSize()
//
// # Package Structure
//
//   - core: configuration, state records, error taxonomy, checkpoints
//   - kernels: activations and the vector primitives used by addressing
//   - addressing: parameter decoding and the address generation pipeline
//   - memory: batched memory bank with weighted reads and erase/add writes
//   - runtime: the step cell, the sequence engine and initial states
//   - model: YAML cell descriptions and parameter sequences
//   - logging: structured logging interface backed by log/slog
//   - cmd: command-line tools (ntmrun, ntmperf)
package ntm
