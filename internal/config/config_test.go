package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-streamer/internal/stream"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"SOCKETADDR", "SERVER_PORT", "MAX_CONN", "CHUNK_SIZE", "STREAM_ERROR_POLICY", "ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}
	t.Setenv("MAX_CONN", "90")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, 90, cfg.MaxConn)
	assert.Equal(t, stream.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, stream.PolicySkip, cfg.ErrorPolicy)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SOCKETADDR", "0.0.0.0:9000")
	t.Setenv("MAX_CONN", "4")
	t.Setenv("CHUNK_SIZE", "512")
	t.Setenv("STREAM_ERROR_POLICY", "Sentinel")
	t.Setenv("DEFAULT_TIMEOUT", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, 4, cfg.MaxConn)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)

	opts := cfg.StreamOptions()
	assert.Equal(t, 512, opts.ChunkSize)
	assert.Equal(t, stream.PolicySentinel, opts.ErrorPolicy)
}

func TestLoad_ServerPort(t *testing.T) {
	t.Setenv("SOCKETADDR", "")
	t.Setenv("SERVER_PORT", "8081")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STREAM_ERROR_POLICY", "explode")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STREAM_ERROR_POLICY", "skip")
	t.Setenv("MAX_CONN", "0")
	_, err = Load()
	assert.Error(t, err)
}
