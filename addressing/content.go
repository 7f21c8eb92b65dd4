package addressing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/kernels"
)

// Similarity returns the B×N matrix of cosine similarities between each batch
// element's key and every row of that element's memory.
func Similarity(key *mat.Dense, memory []*mat.Dense) (*mat.Dense, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: key is nil", core.ErrShapeMismatch)
	}
	batch, width := key.Dims()
	if len(memory) != batch {
		return nil, fmt.Errorf("%w: key has %d rows, memory has %d batch elements", core.ErrShapeMismatch, batch, len(memory))
	}
	for b, m := range memory {
		if m == nil {
			return nil, fmt.Errorf("%w: memory[%d] is nil", core.ErrShapeMismatch, b)
		}
	}
	slots, memWidth := memory[0].Dims()
	if memWidth != width {
		return nil, fmt.Errorf("%w: key width %d, memory width %d", core.ErrShapeMismatch, width, memWidth)
	}

	scores := mat.NewDense(batch, slots, nil)
	for b := 0; b < batch; b++ {
		k := key.RawRowView(b)
		row := scores.RawRowView(b)
		mem := memory[b]
		if r, c := mem.Dims(); r != slots || c != width {
			return nil, fmt.Errorf("%w: memory[%d] is %dx%d, want %dx%d", core.ErrShapeMismatch, b, r, c, slots, width)
		}
		for i := 0; i < slots; i++ {
			row[i] = kernels.CosineSimilarity(k, mem.RawRowView(i))
		}
	}
	return scores, nil
}

// ContentAddress returns softmax(beta · similarity) per batch element. A beta
// of zero yields the uniform distribution whatever the key and memory.
func ContentAddress(key *mat.Dense, beta []float64, memory []*mat.Dense) (*mat.Dense, error) {
	scores, err := Similarity(key, memory)
	if err != nil {
		return nil, err
	}
	batch, _ := scores.Dims()
	if len(beta) != batch {
		return nil, fmt.Errorf("%w: %d key strengths for batch of %d", core.ErrShapeMismatch, len(beta), batch)
	}
	for b := 0; b < batch; b++ {
		row := scores.RawRowView(b)
		for i := range row {
			row[i] *= beta[b]
		}
		kernels.Softmax(row)
	}
	return scores, nil
}
