package addressing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/kernels"
)

// Generator produces one head's address for one step.
type Generator struct {
	cfg  core.Config
	conv *Convolver
}

// NewGenerator validates cfg and builds the shift convolver.
func NewGenerator(cfg core.Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conv, err := NewConvolver(cfg.Slots, cfg.ShiftRange)
	if err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, conv: conv}, nil
}

// Address runs, in order: content addressing against memory, interpolation
// with prev through the gate, circular shift, sharpening by gamma, and
// renormalization. prev is B×N; the result is a fresh B×N matrix whose rows
// are distributions.
func (g *Generator) Address(p HeadParams, prev *mat.Dense, memory []*mat.Dense) (*mat.Dense, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: previous address is nil", core.ErrShapeMismatch)
	}
	batch, n := prev.Dims()
	if n != g.cfg.Slots {
		return nil, fmt.Errorf("%w: previous address has %d slots, want %d", core.ErrShapeMismatch, n, g.cfg.Slots)
	}
	if len(p.Gate) != batch || len(p.Gamma) != batch {
		return nil, fmt.Errorf("%w: head scalars sized %d/%d for batch of %d", core.ErrShapeMismatch, len(p.Gate), len(p.Gamma), batch)
	}

	content, err := ContentAddress(p.Key, p.Beta, memory)
	if err != nil {
		return nil, err
	}

	interpolated := mat.NewDense(batch, n, nil)
	for b := 0; b < batch; b++ {
		gate := p.Gate[b]
		dst, c, w := interpolated.RawRowView(b), content.RawRowView(b), prev.RawRowView(b)
		for i := range dst {
			dst[i] = gate*c[i] + (1-gate)*w[i]
		}
	}

	shifted, err := g.conv.Convolve(interpolated, p.Shift)
	if err != nil {
		return nil, err
	}

	for b := 0; b < batch; b++ {
		row := shifted.RawRowView(b)
		sum := kernels.Sharpen(row, p.Gamma[b])
		if !(sum > 0) || math.IsInf(sum, 0) {
			return nil, fmt.Errorf("%w: batch element %d sums to %v after sharpening", core.ErrDegenerateAddress, b, sum)
		}
		kernels.Normalize(row, sum)
	}
	return shifted, nil
}
