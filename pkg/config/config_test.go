package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAllEnvs(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DSN", "host=127.0.0.1 user=u dbname=d sslmode=disable")

	t.Setenv("SIP_TRUNK_HOST", "trunk.example.com")
	t.Setenv("SIP_TRUNK_PORT", "5070")
	t.Setenv("SIP_USERNAME", "agent01")

	t.Setenv("RTP_PORT_MIN", "12000")
	t.Setenv("RTP_PORT_MAX", "13000")

	t.Setenv("CALL_SILENCE_TIMEOUT_SECONDS", "45")
	t.Setenv("CALL_MAX_DURATION_SECONDS", "600")
	t.Setenv("CALL_RESPONSE_DELAY_SECONDS", "0.5")

	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("LLM_HISTORY_LIMIT", "12")
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	setAllEnvs(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "trunk.example.com", cfg.SIP.TrunkHost)
	assert.Equal(t, 5070, cfg.SIP.TrunkPort)
	assert.Equal(t, 12000, cfg.RTP.PortMin)
	assert.Equal(t, 13000, cfg.RTP.PortMax)
	assert.Equal(t, 45, cfg.Call.SilenceTimeoutSeconds)
	assert.Equal(t, 600, cfg.Call.MaxDurationSeconds)
	assert.InDelta(t, 0.5, cfg.Call.ResponseDelaySeconds, 0.001)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 12, cfg.LLM.HistoryLimit)

	assert.Same(t, cfg, Global)
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5060, cfg.SIP.TrunkPort)
	assert.Equal(t, 10000, cfg.RTP.PortMin)
	assert.Equal(t, 20000, cfg.RTP.PortMax)
	assert.Equal(t, 1500, cfg.Call.UtteranceFallbackMs)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "deepgram", cfg.Transcriber.Provider)
}
