package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Component: "server"})
	log.Info().Int64("conn_id", 7).Msg("connected")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "server", rec["component"])
	assert.Equal(t, "connected", rec["message"])
	assert.Equal(t, float64(7), rec["conn_id"])
}

func TestDebugLevelGate(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf})
	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	log = New(Options{Output: &buf, Debug: true})
	log.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
