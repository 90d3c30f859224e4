package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KEEPER_POSTGRES_DSN", "postgres://localhost/keeper?sslmode=disable")
	t.Setenv("KEEPER_ORACLE_ENDPOINT", "http://localhost:9001")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, int64(15e9), int64(cfg.OracleTimeout)) // 15s in nanoseconds
	require.Equal(t, 16, cfg.DiceHubClientBuffer)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("KEEPER_HTTP_ADDR", ":9090")
	t.Setenv("KEEPER_DICE_HUB_CLIENT_BUFFER", "64")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, 64, cfg.DiceHubClientBuffer)
}

func TestLoad_MissingRequiredFieldErrors(t *testing.T) {
	_, err := config.Load()
	require.Error(t, err)
}
