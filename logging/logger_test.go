package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf, Component: "engine"})

	logger.Debug("hidden")
	logger.With("run_id", "abc").Info("run finished", "steps", 3)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "run finished", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "abc", entry["run_id"])
	assert.Equal(t, float64(3), entry["steps"])
}

func TestNewLoggerTextDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelDebug, Output: &buf})
	logger.Debug("step", "index", 1)
	assert.Contains(t, buf.String(), "msg=step")
	assert.Contains(t, buf.String(), "index=1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() {
		l.With("k", "v").Error("ignored")
	})
}
