package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shii9/reconkit/internal/config"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, zerolog.InfoLevel)

	l.Debug().Msg("hidden")
	l.Info().Str("component", "scheduler").Msg("Batch drained")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "Batch drained", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestInitLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconkit.log")
	l, closer, err := InitLogger(config.LogConfig{Level: "debug", Output: path})
	require.NoError(t, err)

	l.Debug().Msg("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestInitLoggerBadLevel(t *testing.T) {
	_, _, err := InitLogger(config.LogConfig{Level: "loud"})
	require.Error(t, err)
}
