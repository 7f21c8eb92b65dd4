// Package core holds the shared data model of the NTM cell.
//
// It defines the cell configuration and the shape arithmetic derived from it,
// the error taxonomy used across the module, and the recurrent State record
// that callers thread from one time step to the next. Nothing in this package
// performs addressing math; see the addressing and memory packages for that.
//
// Batching: every per-step quantity carries a leading batch dimension B.
// Addresses, keys and reads are B-row matrices, while the memory matrix is
// stored as one N×M matrix per batch element.
package core

import "fmt"

// Gamma bounds applied to the sharpening exponent.
const (
	MinGamma = 1.0
	MaxGamma = 21.0
)

// ShiftBias is the value added before the shift softmax at index ⌊S/2⌋+1.
const ShiftBias = 2.5

// Config fixes the cell geometry. It is set once at construction and never
// changes across steps.
type Config struct {
	Slots      int // N: number of memory rows
	Width      int // M: length of each memory row
	ShiftRange int // S: number of shift offsets, odd
	Heads      int // one read and one write head per segment
}

// Validate reports ErrConfiguration or ErrShiftRange for impossible geometry.
// A shift range below 1 also matches ErrShapeMismatch.
func (c Config) Validate() error {
	if c.Slots < 1 {
		return fmt.Errorf("%w: slots must be >= 1, got %d", ErrConfiguration, c.Slots)
	}
	if c.Width < 1 {
		return fmt.Errorf("%w: width must be >= 1, got %d", ErrConfiguration, c.Width)
	}
	if c.Heads < 1 {
		return fmt.Errorf("%w: heads must be >= 1, got %d", ErrConfiguration, c.Heads)
	}
	if c.ShiftRange < 1 {
		return fmt.Errorf("%w (%w): shift range must be >= 1, got %d", ErrShiftRange, ErrShapeMismatch, c.ShiftRange)
	}
	if c.ShiftRange%2 == 0 {
		return fmt.Errorf("%w: shift range must be odd, got %d", ErrShiftRange, c.ShiftRange)
	}
	if c.ShiftRange > c.Slots {
		return fmt.Errorf("%w: shift range %d exceeds slot count %d", ErrShiftRange, c.ShiftRange, c.Slots)
	}
	return nil
}

// ReadHeadSize is the raw length of a read portion: key, shift, gamma, beta, gate.
func (c Config) ReadHeadSize() int { return c.Width + c.ShiftRange + 3 }

// WriteHeadSize is the raw length of a write portion: the read fields plus add and erase.
func (c Config) WriteHeadSize() int { return 3*c.Width + c.ShiftRange + 3 }

// HeadSize is the raw length of one head segment (read portion then write portion).
func (c Config) HeadSize() int { return c.ReadHeadSize() + c.WriteHeadSize() }

// InputSize is the width of one step's raw parameter row.
func (c Config) InputSize() int { return c.Heads * c.HeadSize() }

// StateArity is the number of entries in the tuple form of the state.
func (c Config) StateArity() int { return c.Slots + 2*c.Heads }

// StateSize lists the width of each tuple entry in order: N memory rows of
// width M, then Heads read addresses and Heads write addresses of width N.
func (c Config) StateSize() []int {
	sizes := make([]int, 0, c.StateArity())
	for i := 0; i < c.Slots; i++ {
		sizes = append(sizes, c.Width)
	}
	for i := 0; i < 2*c.Heads; i++ {
		sizes = append(sizes, c.Slots)
	}
	return sizes
}

// ShiftCenter is the index of the no-op shift.
func (c Config) ShiftCenter() int { return c.ShiftRange / 2 }

func (c Config) String() string {
	return fmt.Sprintf("N=%d M=%d S=%d heads=%d", c.Slots, c.Width, c.ShiftRange, c.Heads)
}
