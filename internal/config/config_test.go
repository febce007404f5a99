package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	require.NoError(t, Initialize())

	assert.Equal(t, "", GetString(KeyDSN))
	assert.Equal(t, "mysql", GetString(KeyBackend))
	assert.Equal(t, "/tmp/weft.sock", GetString(KeySocketPath))
	assert.Equal(t, "", GetString(KeyRedisURL))
	assert.Equal(t, time.Second, GetDuration(KeyOpTimeout))
	assert.Equal(t, time.Second, GetDuration(KeyAcquireTimeout))
	assert.Equal(t, 1000, GetInt(KeyCostLimit))
}

func TestEnvironmentBinding(t *testing.T) {
	t.Setenv("WEFT_DSN", "user:pass@tcp(localhost:3306)/weft")
	t.Setenv("WEFT_BACKEND", "memory")
	t.Setenv("WEFT_OP_TIMEOUT", "250ms")
	t.Setenv("WEFT_COST_LIMIT", "64")
	require.NoError(t, Initialize())

	assert.Equal(t, "user:pass@tcp(localhost:3306)/weft", GetString(KeyDSN))
	assert.Equal(t, "memory", GetString(KeyBackend))
	assert.Equal(t, 250*time.Millisecond, GetDuration(KeyOpTimeout))
	assert.Equal(t, 64, GetInt(KeyCostLimit))
}

func TestSetOverrides(t *testing.T) {
	require.NoError(t, Initialize())

	Set(KeyBackend, "memory")
	assert.Equal(t, "memory", GetString(KeyBackend))
}
