package config_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberfn/uplink/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(testLogger(), "does-not-exist")
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, ":4000", cfg.Relay.Address)
	require.Equal(t, "prod.ol.epicgames.com", cfg.Relay.Domain)
	require.Equal(t, ":5000", cfg.Matchmaker.Address)
	require.Equal(t, 5*time.Second, cfg.Matchmaker.PollInterval)
	require.Equal(t, 1, cfg.Matchmaker.JoinDelaySec)
	require.Equal(t, 60*time.Second, cfg.Transport.ReadTimeout)
	require.NotEmpty(t, cfg.Auth.UplinkKey)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("UPLINK_LOGLEVEL", "debug")
	t.Setenv("UPLINK_RELAY_ADDRESS", ":14000")
	t.Setenv("UPLINK_MATCHMAKER_POLLINTERVAL", "250ms")
	t.Setenv("UPLINK_AUTH_UPLINKKEY", "env-secret")

	cfg, err := config.Load(testLogger(), "does-not-exist")
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, ":14000", cfg.Relay.Address)
	require.Equal(t, 250*time.Millisecond, cfg.Matchmaker.PollInterval)
	require.Equal(t, "env-secret", cfg.Auth.UplinkKey)
}
