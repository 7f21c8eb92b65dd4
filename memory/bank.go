// Package memory implements the N×M memory matrix and its read and write
// operations. A Bank is a value: Write returns a new Bank and leaves the
// receiver untouched.
package memory

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/core"
)

// Bank is a batch of memory matrices, one N×M matrix per batch element.
type Bank struct {
	slots []*mat.Dense
}

// WriteOp is one write head's contribution for a step.
type WriteOp struct {
	Address *mat.Dense // B×N
	Erase   *mat.Dense // B×M, entries in [0, 1]
	Add     *mat.Dense // B×M
}

// NewBank wraps the given matrices. They must all share one shape and must
// not be modified afterwards.
func NewBank(slots []*mat.Dense) (*Bank, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: memory has no batch elements", core.ErrShapeMismatch)
	}
	n, m := slots[0].Dims()
	for b, s := range slots {
		if s == nil {
			return nil, fmt.Errorf("%w: memory[%d] is nil", core.ErrShapeMismatch, b)
		}
		if r, c := s.Dims(); r != n || c != m {
			return nil, fmt.Errorf("%w: memory[%d] is %dx%d, want %dx%d", core.ErrShapeMismatch, b, r, c, n, m)
		}
	}
	return &Bank{slots: slots}, nil
}

// Batch returns the number of batch elements.
func (k *Bank) Batch() int { return len(k.slots) }

// Dims returns N and M.
func (k *Bank) Dims() (slots, width int) { return k.slots[0].Dims() }

// Matrices returns the underlying matrices. Callers must treat them as read-only.
func (k *Bank) Matrices() []*mat.Dense { return k.slots }

// Read returns the B×M matrix whose row b is Σᵢ w[b][i]·memory[b][i].
func (k *Bank) Read(w *mat.Dense) (*mat.Dense, error) {
	n, m := k.Dims()
	if err := k.checkAddress(w, n); err != nil {
		return nil, err
	}
	out := mat.NewDense(k.Batch(), m, nil)
	var r mat.VecDense
	for b, mem := range k.slots {
		r.Reset()
		r.MulVec(mem.T(), w.RowView(b))
		out.SetRow(b, r.RawVector().Data)
	}
	return out, nil
}

// Write applies ops in order. Each head sees the memory left by the heads
// before it:
//
//	memory ← memory ⊙ (1 − w·eraseᵀ) + w·addᵀ
func (k *Bank) Write(ops []WriteOp) (*Bank, error) {
	n, m := k.Dims()
	for h, op := range ops {
		if err := k.checkAddress(op.Address, n); err != nil {
			return nil, fmt.Errorf("write head %d: %w", h, err)
		}
		for _, v := range []struct {
			name string
			m    *mat.Dense
		}{{"erase", op.Erase}, {"add", op.Add}} {
			if v.m == nil {
				return nil, fmt.Errorf("%w: write head %d %s is nil", core.ErrShapeMismatch, h, v.name)
			}
			if r, c := v.m.Dims(); r != k.Batch() || c != m {
				return nil, fmt.Errorf("%w: write head %d %s is %dx%d, want %dx%d", core.ErrShapeMismatch, h, v.name, r, c, k.Batch(), m)
			}
			if !core.Finite(v.m) {
				return nil, fmt.Errorf("%w: write head %d %s contains NaN or Inf", core.ErrInvalidWriteOperand, h, v.name)
			}
		}
		if !core.Finite(op.Address) {
			return nil, fmt.Errorf("%w: write head %d address contains NaN or Inf", core.ErrInvalidWriteOperand, h)
		}
	}

	next := make([]*mat.Dense, k.Batch())
	for b, mem := range k.slots {
		next[b] = mat.DenseCopyOf(mem)
	}

	eraseBox := mat.NewDense(n, m, nil)
	addBox := mat.NewDense(n, m, nil)
	for _, op := range ops {
		for b, mem := range next {
			w := op.Address.RowView(b)
			eraseBox.Outer(1, w, op.Erase.RowView(b))
			addBox.Outer(1, w, op.Add.RowView(b))
			eraseBox.Apply(func(_, _ int, v float64) float64 { return 1 - v }, eraseBox)
			mem.MulElem(mem, eraseBox)
			mem.Add(mem, addBox)
		}
	}
	return &Bank{slots: next}, nil
}

func (k *Bank) checkAddress(w *mat.Dense, n int) error {
	if w == nil {
		return fmt.Errorf("%w: address is nil", core.ErrShapeMismatch)
	}
	if r, c := w.Dims(); r != k.Batch() || c != n {
		return fmt.Errorf("%w: address is %dx%d, want %dx%d", core.ErrShapeMismatch, r, c, k.Batch(), n)
	}
	return nil
}
