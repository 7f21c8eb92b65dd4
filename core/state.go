package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AddressTolerance bounds how far an address row may sum away from 1.
const AddressTolerance = 1e-5

// HeadState holds the previous-step addresses of one head segment.
// Both matrices are B×N; each row is a distribution over slots.
type HeadState struct {
	Read  *mat.Dense
	Write *mat.Dense
}

// State is the recurrent value threaded between steps. A step never mutates
// the State it receives; it returns a fresh one.
type State struct {
	Memory []*mat.Dense // one N×M matrix per batch element
	Heads  []HeadState  // in head order, aligned with the raw input segments
}

// Batch returns the batch size B.
func (s State) Batch() int { return len(s.Memory) }

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{
		Memory: make([]*mat.Dense, len(s.Memory)),
		Heads:  make([]HeadState, len(s.Heads)),
	}
	for b, m := range s.Memory {
		out.Memory[b] = mat.DenseCopyOf(m)
	}
	for h, hs := range s.Heads {
		out.Heads[h] = HeadState{Read: mat.DenseCopyOf(hs.Read), Write: mat.DenseCopyOf(hs.Write)}
	}
	return out
}

// CheckShape verifies every matrix against cfg without inspecting values.
func (s State) CheckShape(cfg Config) error {
	if len(s.Memory) == 0 {
		return fmt.Errorf("%w: state has no batch elements", ErrShapeMismatch)
	}
	for b, m := range s.Memory {
		if m == nil {
			return fmt.Errorf("%w: memory[%d] is nil", ErrShapeMismatch, b)
		}
		if r, c := m.Dims(); r != cfg.Slots || c != cfg.Width {
			return fmt.Errorf("%w: memory[%d] is %dx%d, want %dx%d", ErrShapeMismatch, b, r, c, cfg.Slots, cfg.Width)
		}
	}
	if len(s.Heads) != cfg.Heads {
		return fmt.Errorf("%w: state has %d heads, want %d", ErrShapeMismatch, len(s.Heads), cfg.Heads)
	}
	batch := len(s.Memory)
	for h, hs := range s.Heads {
		for _, a := range []struct {
			name string
			m    *mat.Dense
		}{{"read", hs.Read}, {"write", hs.Write}} {
			if a.m == nil {
				return fmt.Errorf("%w: head %d %s address is nil", ErrShapeMismatch, h, a.name)
			}
			if r, c := a.m.Dims(); r != batch || c != cfg.Slots {
				return fmt.Errorf("%w: head %d %s address is %dx%d, want %dx%d", ErrShapeMismatch, h, a.name, r, c, batch, cfg.Slots)
			}
		}
	}
	return nil
}

// Validate checks shapes, finiteness of memory, and that every address row is
// a distribution within AddressTolerance.
func (s State) Validate(cfg Config) error {
	if err := s.CheckShape(cfg); err != nil {
		return err
	}
	for b, m := range s.Memory {
		if !Finite(m) {
			return fmt.Errorf("%w: memory[%d] has non-finite values", ErrInvalidState, b)
		}
	}
	for h, hs := range s.Heads {
		if err := checkDistribution(hs.Read); err != nil {
			return fmt.Errorf("%w: head %d read address: %v", ErrInvalidState, h, err)
		}
		if err := checkDistribution(hs.Write); err != nil {
			return fmt.Errorf("%w: head %d write address: %v", ErrInvalidState, h, err)
		}
	}
	return nil
}

func checkDistribution(m *mat.Dense) error {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		var sum float64
		for j, v := range m.RawRowView(i) {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d slot %d has value %v", i, j, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > AddressTolerance {
			return fmt.Errorf("row %d sums to %v", i, sum)
		}
	}
	return nil
}

// Finite reports whether every element of m is a finite number.
func Finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Tuple flattens the state into the ordered layout used by sequence engines:
// N memory rows (each B×M), then every read address, then every write
// address (each B×N). The result shares no storage with s.
func (s State) Tuple() []*mat.Dense {
	batch := s.Batch()
	if batch == 0 {
		return nil
	}
	slots, width := s.Memory[0].Dims()
	out := make([]*mat.Dense, 0, slots+2*len(s.Heads))
	for i := 0; i < slots; i++ {
		row := mat.NewDense(batch, width, nil)
		for b, m := range s.Memory {
			row.SetRow(b, m.RawRowView(i))
		}
		out = append(out, row)
	}
	for _, hs := range s.Heads {
		out = append(out, mat.DenseCopyOf(hs.Read))
	}
	for _, hs := range s.Heads {
		out = append(out, mat.DenseCopyOf(hs.Write))
	}
	return out
}

// StateFromTuple is the inverse of State.Tuple.
func StateFromTuple(cfg Config, tuple []*mat.Dense) (State, error) {
	if len(tuple) != cfg.StateArity() {
		return State{}, fmt.Errorf("%w: tuple has %d entries, want %d", ErrShapeMismatch, len(tuple), cfg.StateArity())
	}
	for i, t := range tuple {
		if t == nil {
			return State{}, fmt.Errorf("%w: tuple entry %d is nil", ErrShapeMismatch, i)
		}
	}
	batch, _ := tuple[0].Dims()
	sizes := cfg.StateSize()
	for i, t := range tuple {
		if r, c := t.Dims(); r != batch || c != sizes[i] {
			return State{}, fmt.Errorf("%w: tuple entry %d is %dx%d, want %dx%d", ErrShapeMismatch, i, r, c, batch, sizes[i])
		}
	}

	s := State{
		Memory: make([]*mat.Dense, batch),
		Heads:  make([]HeadState, cfg.Heads),
	}
	for b := 0; b < batch; b++ {
		m := mat.NewDense(cfg.Slots, cfg.Width, nil)
		for i := 0; i < cfg.Slots; i++ {
			m.SetRow(i, tuple[i].RawRowView(b))
		}
		s.Memory[b] = m
	}
	for h := 0; h < cfg.Heads; h++ {
		s.Heads[h] = HeadState{
			Read:  mat.DenseCopyOf(tuple[cfg.Slots+h]),
			Write: mat.DenseCopyOf(tuple[cfg.Slots+cfg.Heads+h]),
		}
	}
	return s, nil
}

// Shard copies batch rows [lo, hi) into an independent State.
func (s State) Shard(lo, hi int) State {
	out := State{
		Memory: make([]*mat.Dense, 0, hi-lo),
		Heads:  make([]HeadState, len(s.Heads)),
	}
	for _, m := range s.Memory[lo:hi] {
		out.Memory = append(out.Memory, mat.DenseCopyOf(m))
	}
	for h, hs := range s.Heads {
		out.Heads[h] = HeadState{Read: RowRange(hs.Read, lo, hi), Write: RowRange(hs.Write, lo, hi)}
	}
	return out
}

// JoinStates concatenates shards along the batch dimension, in order.
func JoinStates(parts []State) (State, error) {
	if len(parts) == 0 {
		return State{}, fmt.Errorf("%w: no states to join", ErrShapeMismatch)
	}
	heads := len(parts[0].Heads)
	out := State{Heads: make([]HeadState, heads)}
	for i, p := range parts {
		if len(p.Heads) != heads {
			return State{}, fmt.Errorf("%w: shard %d has %d heads, want %d", ErrShapeMismatch, i, len(p.Heads), heads)
		}
		out.Memory = append(out.Memory, p.Memory...)
	}
	for h := 0; h < heads; h++ {
		reads := make([]*mat.Dense, len(parts))
		writes := make([]*mat.Dense, len(parts))
		for i, p := range parts {
			reads[i], writes[i] = p.Heads[h].Read, p.Heads[h].Write
		}
		out.Heads[h] = HeadState{Read: StackRows(reads), Write: StackRows(writes)}
	}
	return out, nil
}

// RowRange copies rows [lo, hi) of m.
func RowRange(m *mat.Dense, lo, hi int) *mat.Dense {
	_, c := m.Dims()
	return mat.DenseCopyOf(m.Slice(lo, hi, 0, c))
}

// StackRows concatenates matrices with equal column counts vertically.
func StackRows(parts []*mat.Dense) *mat.Dense {
	var rows, cols int
	for _, p := range parts {
		r, c := p.Dims()
		rows += r
		cols = c
	}
	out := mat.NewDense(rows, cols, nil)
	at := 0
	for _, p := range parts {
		r, _ := p.Dims()
		for i := 0; i < r; i++ {
			out.SetRow(at, p.RawRowView(i))
			at++
		}
	}
	return out
}
