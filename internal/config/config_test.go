package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultValues(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 2*time.Second, cfg.ConnectDelay)
	assert.Equal(t, 30*time.Second, cfg.PersistInterval)
	assert.Equal(t, 20, cfg.HistoryLoadLimit)
	assert.False(t, cfg.AutoStart)
	assert.Equal(t, "companion", cfg.MQTTTopicPrefix)
}

func TestLoadConfig_EnvironmentVariables(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("PERSIST_INTERVAL", "10")
	t.Setenv("AUTO_START", "TRUE")
	t.Setenv("KAFKA_ENABLED", "1")
	t.Setenv("SIMULATOR_SEED", "42")

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.PersistInterval)
	assert.True(t, cfg.AutoStart)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, int64(42), cfg.SimulatorSeed)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("REDIS_DB", "three")
	t.Setenv("CONNECT_DELAY", "soon")

	cfg := LoadConfig()
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 2*time.Second, cfg.ConnectDelay)
}

func TestValidate(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	cfg := LoadConfig()
	assert.ErrorContains(t, cfg.Validate(), "STORE_BACKEND")

	cfg.StoreBackend = BackendMemory
	cfg.TickInterval = 0
	assert.ErrorContains(t, cfg.Validate(), "TICK_INTERVAL")

	cfg.TickInterval = time.Second
	cfg.HistoryLoadLimit = -1
	assert.ErrorContains(t, cfg.Validate(), "HISTORY_LOAD_LIMIT")
}

func TestGetEnv(t *testing.T) {
	assert.Equal(t, "default-value", getEnv("COMPANION_TEST_KEY", "default-value"))
	t.Setenv("COMPANION_TEST_KEY", "")
	assert.Equal(t, "", getEnv("COMPANION_TEST_KEY", "default-value"))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getEnvList("CORS_ALLOWED_ORIGINS"))

	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	assert.Empty(t, getEnvList("CORS_ALLOWED_ORIGINS"))
}
