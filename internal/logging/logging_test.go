package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseLevel("loud")
	assert.False(t, ok)
	_, ok = ParseLevel("")
	assert.False(t, ok)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvLogTimestamp, "not-a-bool")

	cfg := DefaultConfig(ProfileRuntime)
	ApplyEnvOverrides(&cfg)
	assert.Equal(t, zerolog.ErrorLevel, cfg.Level)
	assert.True(t, cfg.JSON)
	assert.True(t, cfg.Timestamp)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: zerolog.InfoLevel, JSON: true}, &buf)
	l.Debug().Msg("hidden")
	l.Info().Str("kind", "ordered").Msg("stream")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "stream", rec["message"])
	assert.Equal(t, "ordered", rec["kind"])
	assert.NotContains(t, rec, "time")
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, DefaultConfig(ProfileTest).Level)
	assert.False(t, DefaultConfig(ProfileTest).Timestamp)
	assert.Equal(t, zerolog.InfoLevel, DefaultConfig(ProfileRuntime).Level)
}
