package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: "json", Output: &buf, Component: "supervisor"})

	logger.Debug("hidden")
	logger.Info("supervisor.run.start", "run_id", "r1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "supervisor.run.start", entry["msg"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "supervisor", entry["component"])
}

func TestNew_TextFormatAndWith(t *testing.T) {
	var buf bytes.Buffer
	logger := With(New(Config{Level: LevelDebug, Format: "text", Output: &buf}), "run_id", "r2")

	logger.Debug("agent.step", "step", 1)
	assert.Contains(t, buf.String(), "agent.step")
	assert.Contains(t, buf.String(), "run_id=r2")
	assert.Contains(t, buf.String(), "step=1")
}

func TestWith_NoOp(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.Equal(t, l, With(l, "k", "v"))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": LevelDebug, "INFO": LevelInfo, "warning": LevelWarn, "error": LevelError, "": LevelInfo} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, "warn", LevelWarn.String())
}
