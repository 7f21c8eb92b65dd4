package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testConfig() Config {
	return Config{Slots: 4, Width: 2, ShiftRange: 3, Heads: 2}
}

func uniformRows(batch, n int) *mat.Dense {
	m := mat.NewDense(batch, n, nil)
	for i := 0; i < batch; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, 1/float64(n))
		}
	}
	return m
}

func testState(cfg Config, batch int) State {
	s := State{Memory: make([]*mat.Dense, batch), Heads: make([]HeadState, cfg.Heads)}
	for b := range s.Memory {
		m := mat.NewDense(cfg.Slots, cfg.Width, nil)
		for i := 0; i < cfg.Slots; i++ {
			for j := 0; j < cfg.Width; j++ {
				m.Set(i, j, float64(100*b+10*i+j))
			}
		}
		s.Memory[b] = m
	}
	for h := range s.Heads {
		s.Heads[h] = HeadState{Read: uniformRows(batch, cfg.Slots), Write: uniformRows(batch, cfg.Slots)}
	}
	return s
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"valid", Config{Slots: 8, Width: 4, ShiftRange: 3, Heads: 1}, nil},
		{"shift equals slots", Config{Slots: 3, Width: 4, ShiftRange: 3, Heads: 1}, nil},
		{"single shift", Config{Slots: 1, Width: 1, ShiftRange: 1, Heads: 1}, nil},
		{"zero slots", Config{Slots: 0, Width: 4, ShiftRange: 1, Heads: 1}, ErrConfiguration},
		{"zero width", Config{Slots: 8, Width: 0, ShiftRange: 3, Heads: 1}, ErrConfiguration},
		{"zero heads", Config{Slots: 8, Width: 4, ShiftRange: 3, Heads: 0}, ErrConfiguration},
		{"zero shift", Config{Slots: 8, Width: 4, ShiftRange: 0, Heads: 1}, ErrShiftRange},
		{"negative shift", Config{Slots: 8, Width: 4, ShiftRange: -3, Heads: 1}, ErrShiftRange},
		{"even shift", Config{Slots: 8, Width: 4, ShiftRange: 4, Heads: 1}, ErrShiftRange},
		{"shift exceeds slots", Config{Slots: 4, Width: 4, ShiftRange: 5, Heads: 1}, ErrShiftRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigNonPositiveShiftIsShapeMismatch(t *testing.T) {
	t.Parallel()
	for _, s := range []int{0, -1} {
		err := Config{Slots: 8, Width: 4, ShiftRange: s, Heads: 1}.Validate()
		assert.ErrorIs(t, err, ErrShiftRange)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	}
	err := Config{Slots: 4, Width: 4, ShiftRange: 5, Heads: 1}.Validate()
	assert.NotErrorIs(t, err, ErrShapeMismatch)
}

func TestConfigSizes(t *testing.T) {
	t.Parallel()
	cfg := Config{Slots: 128, Width: 20, ShiftRange: 3, Heads: 2}

	assert.Equal(t, 26, cfg.ReadHeadSize())
	assert.Equal(t, 66, cfg.WriteHeadSize())
	assert.Equal(t, 4*20+2*3+6, cfg.HeadSize())
	assert.Equal(t, 2*(4*20+2*3+6), cfg.InputSize())
	assert.Equal(t, 128+4, cfg.StateArity())
	assert.Equal(t, 1, cfg.ShiftCenter())

	sizes := cfg.StateSize()
	require.Len(t, sizes, cfg.StateArity())
	assert.Equal(t, 20, sizes[0])
	assert.Equal(t, 20, sizes[127])
	assert.Equal(t, 128, sizes[128])
	assert.Equal(t, 128, sizes[131])
}

func TestStateValidate(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	s := State{Memory: []*mat.Dense{mat.NewDense(4, 2, nil)}, Heads: []HeadState{
		{Read: uniformRows(1, 4), Write: uniformRows(1, 4)},
		{Read: uniformRows(1, 4), Write: uniformRows(1, 4)},
	}}
	require.NoError(t, s.Validate(cfg))

	bad := s.Clone()
	bad.Heads[1].Write.Set(0, 0, 0.9)
	assert.ErrorIs(t, bad.Validate(cfg), ErrInvalidState)

	neg := s.Clone()
	neg.Heads[0].Read.Set(0, 0, -0.25)
	neg.Heads[0].Read.Set(0, 1, 0.75)
	assert.ErrorIs(t, neg.Validate(cfg), ErrInvalidState)

	short := s.Clone()
	short.Heads = short.Heads[:1]
	assert.ErrorIs(t, short.Validate(cfg), ErrShapeMismatch)

	wide := s.Clone()
	wide.Memory[0] = mat.NewDense(4, 3, nil)
	assert.ErrorIs(t, wide.Validate(cfg), ErrShapeMismatch)

	assert.ErrorIs(t, State{}.Validate(cfg), ErrShapeMismatch)
}

func TestStateCloneIndependence(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	s := testState(cfg, 2)
	c := s.Clone()

	c.Memory[0].Set(0, 0, 99)
	c.Heads[0].Read.Set(0, 0, 99)
	assert.NotEqual(t, 99.0, s.Memory[0].At(0, 0))
	assert.NotEqual(t, 99.0, s.Heads[0].Read.At(0, 0))
}

func TestStateTupleRoundTrip(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	s := testState(cfg, 3)

	tuple := s.Tuple()
	require.Len(t, tuple, cfg.StateArity())

	// memory row 2 of batch element 1
	assert.Equal(t, []float64{120, 121}, tuple[2].RawRowView(1))
	assert.True(t, mat.Equal(s.Heads[1].Read, tuple[cfg.Slots+1]))
	assert.True(t, mat.Equal(s.Heads[0].Write, tuple[cfg.Slots+cfg.Heads]))

	back, err := StateFromTuple(cfg, tuple)
	require.NoError(t, err)
	for b := range s.Memory {
		assert.True(t, mat.Equal(s.Memory[b], back.Memory[b]))
	}
	for h := range s.Heads {
		assert.True(t, mat.Equal(s.Heads[h].Read, back.Heads[h].Read))
		assert.True(t, mat.Equal(s.Heads[h].Write, back.Heads[h].Write))
	}

	_, err = StateFromTuple(cfg, tuple[1:])
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestStateShardAndJoin(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	s := testState(cfg, 5)

	parts := []State{s.Shard(0, 2), s.Shard(2, 3), s.Shard(3, 5)}
	assert.Equal(t, 2, parts[0].Batch())
	assert.Equal(t, 1, parts[1].Batch())
	assert.True(t, mat.Equal(s.Memory[2], parts[1].Memory[0]))

	joined, err := JoinStates(parts)
	require.NoError(t, err)
	require.Equal(t, 5, joined.Batch())
	for b := range s.Memory {
		assert.True(t, mat.Equal(s.Memory[b], joined.Memory[b]))
	}
	for h := range s.Heads {
		assert.True(t, mat.Equal(s.Heads[h].Read, joined.Heads[h].Read))
		assert.True(t, mat.Equal(s.Heads[h].Write, joined.Heads[h].Write))
	}

	_, err = JoinStates(nil)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestMarshalState(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	s := testState(cfg, 2)

	data, err := MarshalState(s)
	require.NoError(t, err)
	assert.Len(t, data, HeaderSize+8*(2*4*2+2*2*2*4))

	back, err := UnmarshalState(data)
	require.NoError(t, err)
	require.Equal(t, s.Batch(), back.Batch())
	require.NoError(t, back.CheckShape(cfg))
	for b := range s.Memory {
		assert.True(t, mat.Equal(s.Memory[b], back.Memory[b]))
	}
	for h := range s.Heads {
		assert.True(t, mat.Equal(s.Heads[h].Read, back.Heads[h].Read))
		assert.True(t, mat.Equal(s.Heads[h].Write, back.Heads[h].Write))
	}
}

func TestUnmarshalStateCorrupt(t *testing.T) {
	t.Parallel()
	data, err := MarshalState(testState(testConfig(), 1))
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xFF
	_, err = UnmarshalState(flipped)
	assert.Error(t, err)

	_, err = UnmarshalState(data[:HeaderSize-1])
	assert.Error(t, err)

	_, err = UnmarshalState(data[:len(data)-8])
	assert.ErrorIs(t, err, ErrShapeMismatch)

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 0
	_, err = UnmarshalState(badMagic)
	assert.Error(t, err)

	// Dimensions whose product wraps int must not reach allocation.
	var huge bytes.Buffer
	require.NoError(t, binary.Write(&huge, binary.LittleEndian, StateHeader{
		Magic:   SerializationMagic,
		Version: SerializationVersion,
		Batch:   1 << 16,
		Slots:   1 << 16,
		Width:   1 << 29,
		Heads:   0,
	}))
	require.Len(t, huge.Bytes(), HeaderSize)
	_, err = UnmarshalState(huge.Bytes())
	assert.ErrorIs(t, err, ErrShapeMismatch)

	var oversized bytes.Buffer
	require.NoError(t, binary.Write(&oversized, binary.LittleEndian, StateHeader{
		Magic:   SerializationMagic,
		Version: SerializationVersion,
		Batch:   1,
		Slots:   1 << 31,
		Width:   1 << 31,
		Heads:   1 << 31,
	}))
	oversized.Write(make([]byte, 16))
	_, err = UnmarshalState(oversized.Bytes())
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestBoundedProduct(t *testing.T) {
	t.Parallel()
	p, ok := boundedProduct(24, 2, 3, 4)
	assert.True(t, ok)
	assert.Equal(t, 24, p)

	_, ok = boundedProduct(23, 2, 3, 4)
	assert.False(t, ok)

	p, ok = boundedProduct(0, 1<<30, 0, 1<<30)
	assert.True(t, ok)
	assert.Zero(t, p)

	_, ok = boundedProduct(1<<20, 1<<30, 1<<30, 1<<30)
	assert.False(t, ok)
}

func TestFinite(t *testing.T) {
	t.Parallel()
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	assert.True(t, Finite(m))
	m.Set(1, 1, math.NaN())
	assert.False(t, Finite(m))
}

func BenchmarkStateClone(b *testing.B) {
	cfg := Config{Slots: 128, Width: 20, ShiftRange: 3, Heads: 1}
	s := testState(cfg, 16)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Clone()
	}
}
