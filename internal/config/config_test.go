package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entdesk/entdesk/internal/config"
)

func TestLoadConfig_DefaultHostIsLocalhost(t *testing.T) {
	_ = os.Unsetenv("ENTDESK_HOST")
	cfg, err := config.LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
}

func TestLoadConfig_CanOverrideHost(t *testing.T) {
	t.Setenv("ENTDESK_HOST", "0.0.0.0")
	cfg, err := config.LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"ENTDESK_PORT", "ENTDESK_INDEX_ENGINE", "ENTDESK_EMBEDDING_DIMENSION",
		"ENTDESK_CHUNK_SIZE", "ENTDESK_CHUNK_OVERLAP", "ENTDESK_TRIAGE_THRESHOLD",
		"ENTDESK_DEDUPE_WINDOW",
	} {
		_ = os.Unsetenv(key)
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6480, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.IndexEngine)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 300, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 50, cfg.Retrieval.ChunkOverlap)
	assert.InDelta(t, 0.35, cfg.Triage.Threshold, 1e-9)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.DedupeWindow)
}

func TestLoadConfig_ParsesDurations(t *testing.T) {
	t.Setenv("ENTDESK_DEDUPE_WINDOW", "30m")
	t.Setenv("ENTDESK_EMBEDDING_TIMEOUT", "5s")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Scheduler.DedupeWindow)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
}

func TestLoadConfig_InvalidValueFallsBackToDefault(t *testing.T) {
	t.Setenv("ENTDESK_PORT", "not-a-number")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 6480, cfg.Server.Port)
}

func TestLoadConfig_ProductionRequiresToken(t *testing.T) {
	t.Setenv("ENTDESK_SECURITY_MODE", "production")
	_ = os.Unsetenv("ENTDESK_API_TOKEN")

	_, err := config.LoadConfig()
	assert.Error(t, err)

	t.Setenv("ENTDESK_API_TOKEN", "secret")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Server.APIToken)
}

func TestLoadConfig_PostgresEngineRequiresDSN(t *testing.T) {
	t.Setenv("ENTDESK_INDEX_ENGINE", "postgres")
	_ = os.Unsetenv("ENTDESK_POSTGRES_DSN")

	_, err := config.LoadConfig()
	assert.Error(t, err)

	t.Setenv("ENTDESK_POSTGRES_DSN", "postgres://localhost/entdesk")
	_, err = config.LoadConfig()
	assert.NoError(t, err)
}

func TestLoadConfig_UnknownIndexEngine(t *testing.T) {
	t.Setenv("ENTDESK_INDEX_ENGINE", "redis")
	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_RejectsOverlapNotSmallerThanSize(t *testing.T) {
	t.Setenv("ENTDESK_CHUNK_SIZE", "50")
	t.Setenv("ENTDESK_CHUNK_OVERLAP", "50")
	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_RejectsThresholdOutsideRange(t *testing.T) {
	t.Setenv("ENTDESK_TRIAGE_THRESHOLD", "1.5")
	_, err := config.LoadConfig()
	assert.Error(t, err)
}
