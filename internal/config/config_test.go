package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "transcription-api", cfg.ServiceName)
	assert.Equal(t, BackendPostgres, cfg.QueueBackend)
	assert.Equal(t, int64(100<<20), cfg.MaxMediaBytes)
	assert.Equal(t, "http://transcription:5000", cfg.TranscriptionServiceURL)
	assert.Equal(t, "http://summarization:5001", cfg.SummarizationServiceURL)
	assert.Equal(t, 5*time.Minute, cfg.ExternalCallTimeout)
	assert.Equal(t, 2, cfg.TranscriptionConcurrency)
	assert.Equal(t, 2, cfg.SummarizationConcurrency)
	assert.Equal(t, 3, cfg.JobMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.JobBackoffDelay)
	assert.Equal(t, 2*time.Second, cfg.ProgressTickInterval)
	assert.Greater(t, cfg.JobLeaseTimeout, cfg.ExternalCallTimeout)
	assert.Equal(t, ":8093", cfg.Addr())
	assert.True(t, cfg.UsesPostgres())
}

func TestLoadRequiresAuthKeyMaterial(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("AUTH_JWKS_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET or AUTH_JWKS_URL")
}

func TestLoadRejectsMemoryQueueInSplitDeployment(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("WORKERS_ENABLED", "false")

	_, err := Load()
	assert.ErrorContains(t, err, "QUEUE_BACKEND=memory")
}

func TestLoadRequiresRedisForRedisNotifier(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("NOTIFIER_BACKEND", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestLoadStretchesShortLease(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("EXTERNAL_CALL_TIMEOUT", "1m")
	t.Setenv("JOB_LEASE_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.JobLeaseTimeout)
}

func TestLoadNormalizesBackendNames(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("QUEUE_BACKEND", " Memory ")
	t.Setenv("RECORD_STORE_BACKEND", "MEMORY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.QueueBackend)
	assert.Equal(t, BackendMemory, cfg.RecordStoreBackend)
	assert.False(t, cfg.UsesPostgres())
}
