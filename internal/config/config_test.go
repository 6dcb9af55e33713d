package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		JWT:    JWTConfig{Secret: "test-secret-at-least-32-characters!"},
		Coach: CoachConfig{
			SaveDebounce:      time.Second,
			SendRatePerMinute: 20,
		},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = "too-short"
	require.Error(t, cfg.Validate())

	cfg.JWT.Secret = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg.Server.Port = 70000
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadCoachSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Coach.SaveDebounce = 0
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Coach.SendRatePerMinute = 0
	require.Error(t, cfg.Validate())
}
