package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       "debug",
		Environment: "production",
		ServiceName: "compliance-tasks",
		Version:     "1.2.3",
		Output:      &buf,
	})

	log.Component("sweeper").Info().Str("task_id", "t-1").Msg("escalated")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "compliance-tasks", line["service"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "sweeper", line["component"])
	assert.Equal(t, "t-1", line["task_id"])
	assert.Equal(t, "escalated", line["message"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "chatty", Environment: "production", Output: &buf})

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
