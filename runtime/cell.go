package runtime

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/addressing"
	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/memory"
)

// OutputMode selects how per-head reads are fused into the published output.
type OutputMode int

const (
	// OutputConcat concatenates every head's read: B×(Heads·M).
	OutputConcat OutputMode = iota
	// OutputSum adds the heads' reads: B×M.
	OutputSum
	// OutputFirst publishes only head 0's read: B×M.
	OutputFirst
)

func (m OutputMode) String() string {
	switch m {
	case OutputConcat:
		return "concat"
	case OutputSum:
		return "sum"
	case OutputFirst:
		return "first"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

// ParseOutputMode accepts "concat", "sum" or "first". An empty string means concat.
func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "concat":
		return OutputConcat, nil
	case "sum":
		return OutputSum, nil
	case "first":
		return OutputFirst, nil
	default:
		return 0, fmt.Errorf("%w: unknown output mode %q", core.ErrConfiguration, s)
	}
}

// Output is what one step publishes.
type Output struct {
	Reads []*mat.Dense // one B×M read per head, in head order
	Fused *mat.Dense   // Reads combined according to the cell's OutputMode
}

// Cell runs one addressing step: decode, address, write, read.
// A Cell holds no per-sequence state and is safe for concurrent use.
type Cell struct {
	cfg     core.Config
	mode    OutputMode
	decoder *addressing.Decoder
	gen     *addressing.Generator
}

// NewCell validates cfg and prepares the decoder and address generator.
func NewCell(cfg core.Config, mode OutputMode) (*Cell, error) {
	if mode < OutputConcat || mode > OutputFirst {
		return nil, fmt.Errorf("%w: unknown output mode %d", core.ErrConfiguration, int(mode))
	}
	decoder, err := addressing.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	gen, err := addressing.NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return &Cell{cfg: cfg, mode: mode, decoder: decoder, gen: gen}, nil
}

// Config returns the cell geometry.
func (c *Cell) Config() core.Config { return c.cfg }

// Mode returns the output fusion mode.
func (c *Cell) Mode() OutputMode { return c.mode }

// InputSize is the raw parameter width expected by Step.
func (c *Cell) InputSize() int { return c.cfg.InputSize() }

// StateSize lists the width of each entry of the tuple state.
func (c *Cell) StateSize() []int { return c.cfg.StateSize() }

// OutputSize is the width of Output.Fused.
func (c *Cell) OutputSize() int {
	if c.mode == OutputConcat {
		return c.cfg.Heads * c.cfg.Width
	}
	return c.cfg.Width
}

// Step advances prev by one time step. Every head addresses against the
// previous memory; the write heads then update memory in head order, and the
// read heads read from the updated memory. prev is never modified; on error
// the caller still owns a valid prev.
func (c *Cell) Step(raw *mat.Dense, prev core.State) (Output, core.State, error) {
	if err := prev.CheckShape(c.cfg); err != nil {
		return Output{}, core.State{}, err
	}
	if raw == nil {
		return Output{}, core.State{}, fmt.Errorf("%w: raw parameters are nil", core.ErrShapeMismatch)
	}
	if rows, _ := raw.Dims(); rows != prev.Batch() {
		return Output{}, core.State{}, fmt.Errorf("%w: raw parameters have %d rows, state batch is %d", core.ErrShapeMismatch, rows, prev.Batch())
	}

	params, err := c.decoder.Decode(raw)
	if err != nil {
		return Output{}, core.State{}, err
	}

	next := core.State{Heads: make([]core.HeadState, c.cfg.Heads)}
	ops := make([]memory.WriteOp, c.cfg.Heads)
	for h := 0; h < c.cfg.Heads; h++ {
		wp := params.Write[h]
		ww, err := c.gen.Address(wp.HeadParams, prev.Heads[h].Write, prev.Memory)
		if err != nil {
			return Output{}, core.State{}, fmt.Errorf("write head %d: %w", h, err)
		}
		wr, err := c.gen.Address(params.Read[h], prev.Heads[h].Read, prev.Memory)
		if err != nil {
			return Output{}, core.State{}, fmt.Errorf("read head %d: %w", h, err)
		}
		next.Heads[h] = core.HeadState{Read: wr, Write: ww}
		ops[h] = memory.WriteOp{Address: ww, Erase: wp.Erase, Add: wp.Add}
	}

	bank, err := memory.NewBank(prev.Memory)
	if err != nil {
		return Output{}, core.State{}, err
	}
	written, err := bank.Write(ops)
	if err != nil {
		return Output{}, core.State{}, err
	}
	next.Memory = written.Matrices()

	out := Output{Reads: make([]*mat.Dense, c.cfg.Heads)}
	for h := range out.Reads {
		if out.Reads[h], err = written.Read(next.Heads[h].Read); err != nil {
			return Output{}, core.State{}, fmt.Errorf("read head %d: %w", h, err)
		}
	}
	out.Fused = c.fuse(out.Reads)
	return out, next, nil
}

func (c *Cell) fuse(reads []*mat.Dense) *mat.Dense {
	batch, width := reads[0].Dims()
	switch c.mode {
	case OutputFirst:
		return mat.DenseCopyOf(reads[0])
	case OutputSum:
		sum := mat.DenseCopyOf(reads[0])
		for _, r := range reads[1:] {
			sum.Add(sum, r)
		}
		return sum
	default:
		fused := mat.NewDense(batch, width*len(reads), nil)
		for h, r := range reads {
			fused.Slice(0, batch, h*width, (h+1)*width).(*mat.Dense).Copy(r)
		}
		return fused
	}
}
