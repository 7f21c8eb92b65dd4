// Package addressing turns raw head parameters into address vectors.
//
// The pipeline per head and step is fixed: content addressing against the
// previous memory, interpolation with the previous address, circular shift,
// then sharpening and renormalization. Every function here is pure; state is
// passed in and fresh matrices are returned.
package addressing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/kernels"
)

// HeadParams are the decoded addressing fields shared by read and write heads.
// Matrices are batch-major (one row per batch element).
type HeadParams struct {
	Key   *mat.Dense // B×M, unconstrained
	Shift *mat.Dense // B×S, each row a distribution over offsets -S/2..+S/2
	Gamma []float64  // sharpening exponent in [1, 21]
	Beta  []float64  // key strength >= 0
	Gate  []float64  // interpolation weight in [0, 1]
}

// WriteParams extends HeadParams with the erase and add vectors, both in [0, 1].
type WriteParams struct {
	HeadParams
	Add   *mat.Dense // B×M
	Erase *mat.Dense // B×M
}

// Params holds every head's decoded fields for one step, in head order.
type Params struct {
	Read  []HeadParams
	Write []WriteParams
}

// field describes one slice of a raw head portion.
type field struct {
	name  string
	width int
	op    byte
	bias  []float64
}

// Decoder splits a step's raw parameter rows into typed head fields.
type Decoder struct {
	cfg         core.Config
	readFields  []field
	writeFields []field
}

// NewDecoder validates cfg and precomputes the field layout.
func NewDecoder(cfg core.Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, s := cfg.Width, cfg.ShiftRange
	addressingFields := []field{
		{name: "key", width: m, op: kernels.OpNoop},
		{name: "shift", width: s, op: kernels.OpSoftmax, bias: ShiftBias(s)},
		{name: "gamma", width: 1, op: kernels.OpGamma},
		{name: "beta", width: 1, op: kernels.OpSoftplus},
		{name: "gate", width: 1, op: kernels.OpSigmoid},
	}
	writeFields := append(append([]field(nil), addressingFields...),
		field{name: "add", width: m, op: kernels.OpSigmoid},
		field{name: "erase", width: m, op: kernels.OpSigmoid},
	)
	return &Decoder{cfg: cfg, readFields: addressingFields, writeFields: writeFields}, nil
}

// ShiftBias returns the length-s vector added to the raw shift logits: zero
// everywhere except index ⌊s/2⌋+1, which holds core.ShiftBias. When s is 1
// that index does not exist and the bias is all zero.
func ShiftBias(s int) []float64 {
	bias := make([]float64, s)
	if at := s/2 + 1; at < s {
		bias[at] = core.ShiftBias
	}
	return bias
}

// Decode splits raw (B × cfg.InputSize()) into Heads segments, each a read
// portion followed by a write portion, and applies each field's activation.
func (d *Decoder) Decode(raw *mat.Dense) (Params, error) {
	if raw == nil {
		return Params{}, fmt.Errorf("%w: raw parameters are nil", core.ErrShapeMismatch)
	}
	batch, cols := raw.Dims()
	if cols != d.cfg.InputSize() {
		return Params{}, fmt.Errorf("%w: raw parameters have %d columns, want %d (%d heads x %d)",
			core.ErrShapeMismatch, cols, d.cfg.InputSize(), d.cfg.Heads, d.cfg.HeadSize())
	}

	p := Params{
		Read:  make([]HeadParams, d.cfg.Heads),
		Write: make([]WriteParams, d.cfg.Heads),
	}
	for h := 0; h < d.cfg.Heads; h++ {
		base := h * d.cfg.HeadSize()
		readRaw := raw.Slice(0, batch, base, base+d.cfg.ReadHeadSize()).(*mat.Dense)
		writeRaw := raw.Slice(0, batch, base+d.cfg.ReadHeadSize(), base+d.cfg.HeadSize()).(*mat.Dense)

		if !core.Finite(readRaw) {
			return Params{}, fmt.Errorf("%w: head %d read parameters contain NaN or Inf", core.ErrInvalidReadOperand, h)
		}
		if !core.Finite(writeRaw) {
			return Params{}, fmt.Errorf("%w: head %d write parameters contain NaN or Inf", core.ErrInvalidWriteOperand, h)
		}

		r := decodePortion(readRaw, d.readFields)
		p.Read[h] = headParams(r)

		w := decodePortion(writeRaw, d.writeFields)
		p.Write[h] = WriteParams{HeadParams: headParams(w), Add: w[5], Erase: w[6]}
	}
	return p, nil
}

// decodePortion copies each field out of portion and applies its kernel row by row.
func decodePortion(portion *mat.Dense, fields []field) []*mat.Dense {
	batch, _ := portion.Dims()
	out := make([]*mat.Dense, len(fields))
	off := 0
	for i, f := range fields {
		m := mat.DenseCopyOf(portion.Slice(0, batch, off, off+f.width))
		kernel := kernels.GetKernel(f.op)
		for b := 0; b < batch; b++ {
			row := m.RawRowView(b)
			for j, v := range f.bias {
				row[j] += v
			}
			kernel(row)
		}
		out[i] = m
		off += f.width
	}
	return out
}

func headParams(fields []*mat.Dense) HeadParams {
	return HeadParams{
		Key:   fields[0],
		Shift: fields[1],
		Gamma: mat.Col(nil, 0, fields[2]),
		Beta:  mat.Col(nil, 0, fields[3]),
		Gate:  mat.Col(nil, 0, fields[4]),
	}
}
