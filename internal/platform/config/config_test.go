package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, devSigningKey, cfg.Server.JWTSigningKey)
	assert.Equal(t, CacheDriverMemory, cfg.Cache.Driver)
	assert.Equal(t, LedgerDriverMemory, cfg.Ledger.Driver)
	assert.Equal(t, BlobDriverMemory, cfg.Blob.Driver)
	assert.False(t, cfg.Cache.Require)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CERTLEDGER_ADDR", ":9090")
	t.Setenv("CACHE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/certs")
	t.Setenv("REQUIRE_CACHE", "true")
	t.Setenv("LEDGER_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RESYNC_INTERVAL", "10m")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, CacheDriverPostgres, cfg.Cache.Driver)
	assert.True(t, cfg.Cache.Require)
	assert.Equal(t, 3*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ResyncEvery)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad duration", map[string]string{"CACHE_TIMEOUT": "soon"}, "CACHE_TIMEOUT"},
		{"bad bool", map[string]string{"REQUIRE_CACHE": "maybe"}, "REQUIRE_CACHE"},
		{"unknown cache driver", map[string]string{"CACHE_DRIVER": "mongo"}, "CACHE_DRIVER"},
		{"postgres without url", map[string]string{"CACHE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"redis without url", map[string]string{"CACHE_DRIVER": "redis"}, "REDIS_URL"},
		{"fabric without credentials", map[string]string{"LEDGER_DRIVER": "fabric"}, "FABRIC_TLS_CERT_PATH"},
		{"production without key", map[string]string{"ENVIRONMENT": "production", "LEDGER_DRIVER": "memory"}, "JWT_SIGNING_KEY"},
		{"memory ledger in production", map[string]string{"ENVIRONMENT": "production", "JWT_SIGNING_KEY": "k"}, "LEDGER_DRIVER=memory"},
		{"zero upload cap", map[string]string{"MAX_UPLOAD_BYTES": "0"}, "MAX_UPLOAD_BYTES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
