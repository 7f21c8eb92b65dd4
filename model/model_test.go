package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/runtime"
)

const copyTask = `
name: copy-task
memory:
  slots: 128
  width: 20
shift_range: 3
heads: 2
output: sum
`

func TestParse(t *testing.T) {
	t.Parallel()
	s, err := Parse([]byte(copyTask))
	require.NoError(t, err)
	assert.Equal(t, "copy-task", s.Name)
	assert.Equal(t, "sum", s.Output)
	assert.Equal(t, core.Config{Slots: 128, Width: 20, ShiftRange: 3, Heads: 2}, s.Config())

	mode, err := s.OutputMode()
	require.NoError(t, err)
	assert.Equal(t, runtime.OutputSum, mode)
}

func TestSpecOutputModeDefaultsToConcat(t *testing.T) {
	t.Parallel()
	s, err := Parse([]byte("memory: {slots: 8, width: 4}\nshift_range: 3\n"))
	require.NoError(t, err)
	mode, err := s.OutputMode()
	require.NoError(t, err)
	assert.Equal(t, runtime.OutputConcat, mode)

	s.Output = "FIRST"
	mode, err = s.OutputMode()
	require.NoError(t, err)
	assert.Equal(t, runtime.OutputFirst, mode)
}

func TestParseDefaultsHeads(t *testing.T) {
	t.Parallel()
	s, err := Parse([]byte("memory: {slots: 8, width: 4}\nshift_range: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Heads)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"malformed", "memory: [", core.ErrConfiguration},
		{"no slots", "memory: {width: 4}\nshift_range: 1\n", core.ErrConfiguration},
		{"even shift", "memory: {slots: 8, width: 4}\nshift_range: 2\n", core.ErrShiftRange},
		{"shift too wide", "memory: {slots: 3, width: 4}\nshift_range: 5\n", core.ErrShiftRange},
		{"bad output", "memory: {slots: 8, width: 4}\nshift_range: 3\noutput: mean\n", core.ErrConfiguration},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := Parse([]byte(copyTask))
	require.NoError(t, err)
	data, err := s.Marshal()
	require.NoError(t, err)
	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "cell.yaml")
	require.NoError(t, os.WriteFile(path, []byte(copyTask), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Heads)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSequenceMatrices(t *testing.T) {
	t.Parallel()
	cfg := core.Config{Slots: 4, Width: 1, ShiftRange: 1, Heads: 1}
	// read 1+1+3 = 5, write 3+1+3 = 7
	require.Equal(t, 12, cfg.InputSize())

	row := func(v float64) []float64 {
		out := make([]float64, 12)
		for i := range out {
			out[i] = v
		}
		return out
	}
	seq := &Sequence{Steps: [][][]float64{
		{row(1), row(2)},
		{row(3), row(4)},
	}}
	ms, err := seq.Matrices(cfg)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 2, seq.Batch())
	assert.Equal(t, 4.0, ms[1].At(1, 11))

	seq.Steps[1] = seq.Steps[1][:1]
	_, err = seq.Matrices(cfg)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)

	_, err = (&Sequence{Steps: [][][]float64{{row(1)[:3]}}}).Matrices(cfg)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)

	_, err = (&Sequence{}).Matrices(cfg)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestLoadSequence(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - [[1, 2], [3, 4]]\n  - [[5, 6], [7, 8]]\n"), 0o600))
	seq, err := LoadSequence(path)
	require.NoError(t, err)
	require.Len(t, seq.Steps, 2)
	assert.Equal(t, []float64{7, 8}, seq.Steps[1][1])
}
