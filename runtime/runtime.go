// Package runtime drives the NTM cell over input sequences.
//
// The runtime is a thin layer on top of addressing and memory:
//   - Cell: one time step (decode raw parameters, address, write, read)
//   - Engine: runs whole sequences, shards the batch across workers, and
//     tracks execution statistics
//   - InitialState: the conventional starting state for a new sequence
//
// Batch elements never interact, so the Engine splits the batch into
// contiguous shards and runs every shard's sequence on its own goroutine.
// Results are joined back in batch order and are identical to a single
// worker run.
package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/logging"
)

// Options configures engine behavior.
type Options struct {
	Workers     int
	Output      OutputMode
	EnableStats bool
	Logger      logging.Logger
}

// DefaultOptions provides sensible runtime defaults.
func DefaultOptions() Options {
	return Options{
		Workers:     goruntime.NumCPU(),
		Output:      OutputConcat,
		EnableStats: false,
		Logger:      logging.NoOpLogger{},
	}
}

// ExecutionStats tracks runtime counters across runs.
type ExecutionStats struct {
	TotalRuns      int64
	FailedRuns     int64
	TotalSteps     int64
	AverageLatency time.Duration
}

// RunResult is the output of one sequence run.
type RunResult struct {
	ID       string
	Outputs  []Output // one per input step
	Final    core.State
	Duration time.Duration
}

// Engine runs the cell over whole sequences.
type Engine struct {
	cell  *Cell
	opts  Options
	log   logging.Logger
	stats ExecutionStats
	mu    sync.RWMutex
}

// NewEngine creates an engine for cfg. A nil opts uses DefaultOptions.
func NewEngine(cfg core.Config, opts *Options) (*Engine, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = logging.NoOpLogger{}
	}
	cell, err := NewCell(cfg, o.Output)
	if err != nil {
		return nil, fmt.Errorf("creating cell: %w", err)
	}
	return &Engine{
		cell: cell,
		opts: o,
		log:  o.Logger.With("slots", cfg.Slots, "width", cfg.Width, "heads", cfg.Heads),
	}, nil
}

// Cell returns the engine's cell.
func (e *Engine) Cell() *Cell { return e.cell }

// Step advances a single state by one step.
func (e *Engine) Step(raw *mat.Dense, st core.State) (Output, core.State, error) {
	return e.cell.Step(raw, st)
}

// Run feeds inputs through the cell starting from initial. Each input is a
// B×InputSize matrix for one time step. initial is validated in full and is
// not modified. Cancelling ctx stops every worker before its next step.
func (e *Engine) Run(ctx context.Context, inputs []*mat.Dense, initial core.State) (*RunResult, error) {
	start := time.Now()
	id := uuid.NewString()
	log := e.log.With("run_id", id)

	res, err := e.run(ctx, inputs, initial, log)
	duration := time.Since(start)
	if e.opts.EnableStats {
		e.record(len(inputs), duration, err)
	}
	if err != nil {
		log.Error("run failed", "error", err)
		return nil, err
	}
	res.ID = id
	res.Duration = duration
	log.Info("run complete", "steps", len(inputs), "batch", initial.Batch(), "duration", duration)
	return res, nil
}

func (e *Engine) run(ctx context.Context, inputs []*mat.Dense, initial core.State, log logging.Logger) (*RunResult, error) {
	cfg := e.cell.Config()
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no input steps", core.ErrShapeMismatch)
	}
	if err := initial.Validate(cfg); err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	batch := initial.Batch()
	for t, x := range inputs {
		if x == nil {
			return nil, fmt.Errorf("%w: step %d input is nil", core.ErrShapeMismatch, t)
		}
		if r, c := x.Dims(); r != batch || c != cfg.InputSize() {
			return nil, fmt.Errorf("%w: step %d input is %dx%d, want %dx%d",
				core.ErrShapeMismatch, t, r, c, batch, cfg.InputSize())
		}
	}

	bounds := shardBounds(batch, e.opts.Workers)
	log.Debug("run started", "steps", len(inputs), "batch", batch, "shards", len(bounds))
	if len(bounds) == 1 {
		outs, final, err := e.runShard(ctx, inputs, initial, log)
		if err != nil {
			return nil, err
		}
		return &RunResult{Outputs: outs, Final: final}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type shardResult struct {
		outs  []Output
		final core.State
		err   error
	}
	results := make([]shardResult, len(bounds))
	var wg sync.WaitGroup
	for i, b := range bounds {
		wg.Add(1)
		go func(i, lo, hi int) {
			defer wg.Done()
			xs := make([]*mat.Dense, len(inputs))
			for t, x := range inputs {
				xs[t] = core.RowRange(x, lo, hi)
			}
			shardLog := log.With("shard", i, "rows_lo", lo, "rows_hi", hi)
			outs, final, err := e.runShard(ctx, xs, initial.Shard(lo, hi), shardLog)
			if err != nil {
				cancel()
			}
			results[i] = shardResult{outs: outs, final: final, err: err}
		}(i, b[0], b[1])
	}
	wg.Wait()

	finals := make([]core.State, len(results))
	for i, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("shard %d: %w", i, r.err)
		}
		finals[i] = r.final
	}
	final, err := core.JoinStates(finals)
	if err != nil {
		return nil, err
	}

	outs := make([]Output, len(inputs))
	for t := range outs {
		reads := make([]*mat.Dense, cfg.Heads)
		for h := range reads {
			parts := make([]*mat.Dense, len(results))
			for i, r := range results {
				parts[i] = r.outs[t].Reads[h]
			}
			reads[h] = core.StackRows(parts)
		}
		fused := make([]*mat.Dense, len(results))
		for i, r := range results {
			fused[i] = r.outs[t].Fused
		}
		outs[t] = Output{Reads: reads, Fused: core.StackRows(fused)}
	}
	return &RunResult{Outputs: outs, Final: final}, nil
}

func (e *Engine) runShard(ctx context.Context, inputs []*mat.Dense, st core.State, log logging.Logger) ([]Output, core.State, error) {
	outs := make([]Output, 0, len(inputs))
	for t, x := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, core.State{}, fmt.Errorf("step %d: %w", t, err)
		}
		out, next, err := e.cell.Step(x, st)
		if err != nil {
			return nil, core.State{}, fmt.Errorf("step %d: %w", t, err)
		}
		outs = append(outs, out)
		st = next
		log.Debug("step complete", "step", t)
	}
	return outs, st, nil
}

// shardBounds splits [0, batch) into at most workers contiguous ranges.
func shardBounds(batch, workers int) [][2]int {
	if workers > batch {
		workers = batch
	}
	if workers < 1 {
		workers = 1
	}
	bounds := make([][2]int, 0, workers)
	size, rem := batch/workers, batch%workers
	lo := 0
	for i := 0; i < workers; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		bounds = append(bounds, [2]int{lo, hi})
		lo = hi
	}
	return bounds
}

func (e *Engine) record(steps int, d time.Duration, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.stats.FailedRuns++
		return
	}
	e.stats.AverageLatency = time.Duration(
		(int64(e.stats.AverageLatency)*e.stats.TotalRuns + int64(d)) /
			(e.stats.TotalRuns + 1),
	)
	e.stats.TotalRuns++
	e.stats.TotalSteps += int64(steps)
}

// Stats returns a snapshot of the execution counters.
func (e *Engine) Stats() ExecutionStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}
