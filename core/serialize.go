package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"gonum.org/v1/gonum/mat"
)

// StateHeader prefixes a serialized State checkpoint.
type StateHeader struct {
	Magic    uint32 // "NTMS"
	Version  uint16
	Reserved uint16
	Batch    uint32
	Slots    uint32
	Width    uint32
	Heads    uint32
	Checksum uint32 // CRC32 (IEEE) of the payload
}

const (
	SerializationMagic   = 0x534D544E // "NTMS" in little endian
	SerializationVersion = 1
	HeaderSize           = 28 // sizeof(StateHeader)
)

// MarshalState encodes s as a header followed by little-endian float64 values:
// every memory matrix in batch order, then each head's read and write address.
func MarshalState(s State) ([]byte, error) {
	if s.Batch() == 0 {
		return nil, errors.New("cannot serialize empty state")
	}
	slots, width := s.Memory[0].Dims()
	cfg := Config{Slots: slots, Width: width, Heads: len(s.Heads)}
	if err := s.CheckShape(cfg); err != nil {
		return nil, err
	}

	payloadLen := 8 * (s.Batch()*slots*width + 2*len(s.Heads)*s.Batch()*slots)
	payload := bytes.NewBuffer(make([]byte, 0, payloadLen))
	for _, m := range s.Memory {
		writeMatrix(payload, m)
	}
	for _, hs := range s.Heads {
		writeMatrix(payload, hs.Read)
		writeMatrix(payload, hs.Write)
	}

	header := StateHeader{
		Magic:    SerializationMagic,
		Version:  SerializationVersion,
		Batch:    uint32(s.Batch()),
		Slots:    uint32(slots),
		Width:    uint32(width),
		Heads:    uint32(len(s.Heads)),
		Checksum: crc32.ChecksumIEEE(payload.Bytes()),
	}

	out := bytes.NewBuffer(make([]byte, 0, HeaderSize+payload.Len()))
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	out.Write(payload.Bytes())
	return out.Bytes(), nil
}

func writeMatrix(buf *bytes.Buffer, m *mat.Dense) {
	var scratch [8]byte
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for _, v := range m.RawRowView(i) {
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
			buf.Write(scratch[:])
		}
	}
}

// UnmarshalState decodes a checkpoint written by MarshalState.
func UnmarshalState(data []byte) (State, error) {
	if len(data) < HeaderSize {
		return State{}, errors.New("data too short for header")
	}

	var header StateHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return State{}, err
	}
	if header.Magic != SerializationMagic {
		return State{}, errors.New("invalid magic number")
	}
	if header.Version != SerializationVersion {
		return State{}, fmt.Errorf("unsupported serialization version %d", header.Version)
	}
	if header.Batch == 0 || header.Slots == 0 || header.Width == 0 {
		return State{}, fmt.Errorf("%w: zero dimension in header", ErrShapeMismatch)
	}

	payload := data[HeaderSize:]
	batch, slots, width, heads := int(header.Batch), int(header.Slots), int(header.Width), int(header.Heads)
	avail := len(payload) / 8
	memCount, okMem := boundedProduct(avail, batch, slots, width)
	addrCount, okAddr := boundedProduct(avail, 2, heads, batch, slots)
	if !okMem || !okAddr || len(payload)%8 != 0 || memCount+addrCount != avail {
		return State{}, fmt.Errorf("%w: payload of %d bytes does not hold %d batch x %d slots x %d width with %d heads",
			ErrShapeMismatch, len(payload), batch, slots, width, heads)
	}
	if crc32.ChecksumIEEE(payload) != header.Checksum {
		return State{}, errors.New("data corruption detected")
	}

	r := &floatReader{data: payload}
	s := State{
		Memory: make([]*mat.Dense, batch),
		Heads:  make([]HeadState, heads),
	}
	for b := range s.Memory {
		s.Memory[b] = mat.NewDense(slots, width, r.next(slots*width))
	}
	for h := range s.Heads {
		s.Heads[h].Read = mat.NewDense(batch, slots, r.next(batch*slots))
		s.Heads[h].Write = mat.NewDense(batch, slots, r.next(batch*slots))
	}
	return s, nil
}

// boundedProduct multiplies factors and reports false as soon as the product
// exceeds limit. Factors are non-negative.
func boundedProduct(limit int, factors ...int) (int, bool) {
	p := 1
	for _, f := range factors {
		if f == 0 {
			return 0, true
		}
		if p > limit/f {
			return 0, false
		}
		p *= f
	}
	return p, p <= limit
}

type floatReader struct {
	data []byte
	off  int
}

func (r *floatReader) next(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(r.data[r.off:]))
		r.off += 8
	}
	return out
}
