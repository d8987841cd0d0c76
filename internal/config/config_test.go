package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.SonnetModel)
	assert.Equal(t, "https://musicbrainz.org/ws/2", cfg.MusicBrainz.BaseURL)
	assert.Equal(t, 400, cfg.Scan.ConfirmationHoldMS)
	assert.Equal(t, 24, cfg.Scan.CooldownHours)
	assert.False(t, cfg.Scan.Premium)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SLEEVE_SCAN_COOLDOWN_HOURS", "6")
	t.Setenv("SLEEVE_SCAN_PREMIUM", "true")
	t.Setenv("SLEEVE_ANTHROPIC_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Scan.CooldownHours)
	assert.True(t, cfg.Scan.Premium)
	assert.Equal(t, "test-key", cfg.Anthropic.Key)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
}
