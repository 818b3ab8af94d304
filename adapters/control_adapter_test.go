package adapters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rws/adapters"
)

func TestControlAdapterBasic(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	assert.Empty(t, ctrl.GetConfig(), "expected empty config on init")

	called := false
	ctrl.OnReload(func() { called = true })
	require.NoError(t, ctrl.SetConfig(map[string]any{"debug": true}))
	assert.True(t, called, "reload hook not called")
	assert.Equal(t, true, ctrl.GetConfig()["debug"])

	ctrl.SetMetric("connections", 2)
	ctrl.AddMetric("admitted_total", 1)
	ctrl.RegisterDebugProbe("rooms", func() any { return 0 })

	stats := ctrl.Stats()
	assert.Equal(t, 2, stats["connections"])
	assert.Equal(t, int64(1), stats["admitted_total"])
	assert.Equal(t, 0, stats["debug.rooms"])
	assert.Contains(t, stats, "debug.platform.cpus")
}
