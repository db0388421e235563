package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/batepapo/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := map[string]struct {
		level string
		want  zerolog.Level
	}{
		"debug":   {"debug", zerolog.DebugLevel},
		"warn":    {"warn", zerolog.WarnLevel},
		"unknown": {"loud", zerolog.InfoLevel},
		"empty":   {"", zerolog.InfoLevel},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&config.Config{Env: "production", LogLevel: tt.level}, &buf)
			require.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNewLoggerWritesJSONOutsideDevelopment(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	logger := newLogger(&config.Config{Env: "production", LogLevel: "info"}, &buf)
	logger.Info().Str("participant", "ana").Msg("joined")

	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("ana", line["participant"])
	req.Equal("joined", line["message"])
	req.Contains(line, "time")
}

func TestNewLoggerConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&config.Config{Env: "development", LogLevel: "info"}, &buf)
	logger.Info().Msg("starting")

	require.Contains(t, buf.String(), "starting")
	require.False(t, json.Valid(buf.Bytes()))
}
