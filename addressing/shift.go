package addressing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/kernels"
)

// Convolver applies location-based addressing: circular convolution of an
// address with a shift distribution. The shift kernel is zero padded to N,
// never tiled.
type Convolver struct {
	slots      int
	shiftRange int
	scratch    *kernels.ScratchPool
}

// NewConvolver checks 1 <= shiftRange <= slots up front so Convolve never
// has to truncate a kernel.
func NewConvolver(slots, shiftRange int) (*Convolver, error) {
	if slots < 1 {
		return nil, fmt.Errorf("%w: slots must be >= 1, got %d", core.ErrConfiguration, slots)
	}
	if shiftRange < 1 {
		return nil, fmt.Errorf("%w (%w): shift range must be >= 1, got %d", core.ErrShiftRange, core.ErrShapeMismatch, shiftRange)
	}
	if shiftRange > slots {
		return nil, fmt.Errorf("%w: shift range %d not in [1, %d]", core.ErrShiftRange, shiftRange, slots)
	}
	return &Convolver{
		slots:      slots,
		shiftRange: shiftRange,
		scratch:    kernels.NewScratchPool(slots, kernels.DefaultPoolSize()),
	}, nil
}

// Convolve returns w (B×N) convolved row by row with shift (B×S).
// The total mass of each row is preserved.
func (c *Convolver) Convolve(w, shift *mat.Dense) (*mat.Dense, error) {
	if w == nil || shift == nil {
		return nil, fmt.Errorf("%w: address or shift is nil", core.ErrShapeMismatch)
	}
	batch, n := w.Dims()
	if n != c.slots {
		return nil, fmt.Errorf("%w: address has %d slots, want %d", core.ErrShapeMismatch, n, c.slots)
	}
	if r, s := shift.Dims(); r != batch || s != c.shiftRange {
		return nil, fmt.Errorf("%w: shift is %dx%d, want %dx%d", core.ErrShapeMismatch, r, s, batch, c.shiftRange)
	}

	if c.shiftRange == 1 {
		// The only offset is "stay".
		return mat.DenseCopyOf(w), nil
	}

	out := mat.NewDense(batch, n, nil)
	aligned := c.scratch.Get()
	defer c.scratch.Put(aligned)
	for b := 0; b < batch; b++ {
		kernels.AlignShift(aligned, shift.RawRowView(b))
		kernels.CircularConvolve(out.RawRowView(b), w.RawRowView(b), aligned)
	}
	return out, nil
}
