package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, TokenStoreMemory, cfg.TokenStore)
	assert.Equal(t, "rollcall.attendance.events", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 24*time.Hour, cfg.Sweeper.Retention)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("ROLLCALL_ADDR", ":9090")
	t.Setenv("TOKEN_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TOKEN_SWEEP_INTERVAL", "30s")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, TokenStoreRedis, cfg.TokenStore)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
}

func TestParseRejectsInconsistentTokenStore(t *testing.T) {
	tests := []struct {
		name  string
		store string
		want  string
	}{
		{"postgres without database", TokenStorePostgres, "requires DATABASE_URL"},
		{"redis without url", TokenStoreRedis, "requires REDIS_URL"},
		{"unknown backend", "etcd", "unknown TOKEN_STORE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TOKEN_STORE", tt.store)
			_, err := Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
