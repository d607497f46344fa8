package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uicp/engine/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible single-host
// defaults when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UICP_PORT", "")
	t.Setenv("UICP_LOG_LEVEL", "")
	t.Setenv("UICP_SCHEDULER_CONCURRENCY", "")
	t.Setenv("UICP_SAFE_MODE", "")
	t.Setenv("UICP_DEV_WRITE_DESKTOP", "")

	cfg := config.Load()

	assert.Equal(t, "8089", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, 1000, cfg.IdempotencyCompactionThreshold)
	assert.False(t, cfg.SafeMode)
	assert.False(t, cfg.DevWriteDesktop)
	assert.GreaterOrEqual(t, cfg.SchedulerConcurrency, 1)
	assert.LessOrEqual(t, cfg.SchedulerConcurrency, 4)
}

// TestLoad_Overrides verifies environment variables override defaults,
// and that UICP_SCHEDULER_CONCURRENCY takes precedence when valid.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("UICP_PORT", "9090")
	t.Setenv("UICP_LOG_LEVEL", "DEBUG")
	t.Setenv("UICP_SCHEDULER_CONCURRENCY", "2")
	t.Setenv("UICP_SAFE_MODE", "true")
	t.Setenv("UICP_IDEMPOTENCY_TTL", "5m")
	t.Setenv("UICP_IDEMPOTENCY_COMPACTION_THRESHOLD", "50")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 2, cfg.SchedulerConcurrency)
	assert.True(t, cfg.SafeMode)
	assert.Equal(t, 5*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, 50, cfg.IdempotencyCompactionThreshold)
}

// TestLoad_InvalidConcurrencyFallsBackToDefault ensures a non-positive
// override does not silently produce a zero-worker scheduler.
func TestLoad_InvalidConcurrencyFallsBackToDefault(t *testing.T) {
	t.Setenv("UICP_SCHEDULER_CONCURRENCY", "-3")
	cfg := config.Load()
	assert.GreaterOrEqual(t, cfg.SchedulerConcurrency, 1)
}
