package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/batepapo/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)
	req.Equal("5000", cfg.Port)
	req.Equal(store.BackendBadger, cfg.StoreBackend)
	req.Equal(15*time.Second, cfg.SweepInterval)
	req.Equal(10*time.Second, cfg.InactivityThreshold)
	req.Equal("batepapo.events", cfg.KafkaTopic)
	req.Empty(cfg.KafkaBrokers)
	req.True(cfg.IsDevelopment())
}

func TestLoadFromEnv(t *testing.T) {
	req := require.New(t)
	t.Setenv("PORT", "8081")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SWEEP_INTERVAL", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8,127.0.0.1")
	t.Setenv("AUTO_BLOCK_ENABLED", "true")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("8081", cfg.Port)
	req.Equal(2*time.Second, cfg.SweepInterval)
	req.Equal([]string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	req.Equal([]string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)
	req.True(cfg.AutoBlockEnabled)

	opts := cfg.StoreOptions()
	req.Equal(store.BackendRedis, opts.Backend)
	req.Equal("redis://localhost:6379/0", opts.RedisURL)
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend":      {"STORE_BACKEND": "mongo"},
		"postgres without url": {"STORE_BACKEND": "postgres", "DATABASE_URL": ""},
		"redis without url":    {"STORE_BACKEND": "redis", "REDIS_URL": ""},
		"zero sweep interval":  {"SWEEP_INTERVAL": "0s"},
		"negative threshold":   {"INACTIVITY_THRESHOLD": "-1s"},
		"bad duration":         {"SWEEP_INTERVAL": "soon"},
		"in-memory production": {"ENV": "production", "BADGER_PATH": store.InMemoryPath},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
