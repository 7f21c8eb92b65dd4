package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/core"
)

// Sequence is a YAML list of time steps; each step lists one row of raw
// parameters per batch element.
type Sequence struct {
	Steps [][][]float64 `yaml:"steps"`
}

// LoadSequence reads a Sequence from path.
func LoadSequence(path string) (*Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sequence %s: %w", path, err)
	}
	var seq Sequence
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("sequence %s: %w", path, err)
	}
	return &seq, nil
}

// Batch returns the number of rows in the first step.
func (q *Sequence) Batch() int {
	if len(q.Steps) == 0 {
		return 0
	}
	return len(q.Steps[0])
}

// Matrices converts every step into a B×cfg.InputSize() matrix. All steps
// must share the same batch size.
func (q *Sequence) Matrices(cfg core.Config) ([]*mat.Dense, error) {
	if len(q.Steps) == 0 {
		return nil, fmt.Errorf("%w: sequence has no steps", core.ErrShapeMismatch)
	}
	batch, width := q.Batch(), cfg.InputSize()
	if batch == 0 {
		return nil, fmt.Errorf("%w: step 0 has no rows", core.ErrShapeMismatch)
	}
	out := make([]*mat.Dense, len(q.Steps))
	for t, rows := range q.Steps {
		if len(rows) != batch {
			return nil, fmt.Errorf("%w: step %d has %d rows, want %d", core.ErrShapeMismatch, t, len(rows), batch)
		}
		m := mat.NewDense(batch, width, nil)
		for b, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("%w: step %d row %d has %d values, want %d", core.ErrShapeMismatch, t, b, len(row), width)
			}
			m.SetRow(b, row)
		}
		out[t] = m
	}
	return out, nil
}
