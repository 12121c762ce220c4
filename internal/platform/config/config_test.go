package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDefaults(t *testing.T) {
	cfg, err := Read()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, 2000, cfg.DefaultTimeLimitMs)
	assert.Equal(t, 131072, cfg.DefaultMemoryLimitKb)
	assert.Equal(t, 20*time.Second, cfg.SubmitWait)
	assert.Contains(t, cfg.DBConnStr, "dbname=tle_zone_judge")
	assert.Equal(t, "container", cfg.SandboxBackend)
	assert.False(t, cfg.SandboxAllowUnisolated)
	assert.Equal(t, 15*time.Minute, cfg.JobStaleAfter)
}

func TestReadOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("MAX_INFLIGHT_PER_USER", "7")
	t.Setenv("SUBMIT_WAIT", "3s")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Read()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.APIPort)
	assert.Equal(t, 7, cfg.MaxInflightPerUser)
	assert.Equal(t, 3*time.Second, cfg.SubmitWait)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}
