package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, zerolog.ErrorLevel, levelFromString("ERROR"))
	assert.Equal(t, zerolog.WarnLevel, levelFromString(" warning "))
	assert.Equal(t, zerolog.InfoLevel, levelFromString("info"))
	assert.Equal(t, zerolog.DebugLevel, levelFromString("whatever"))
}

func TestJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")
	logger.Debug().Msg("hidden")
	logger.Info().Str("symbol", "AAPL").Msg("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "AAPL", line["symbol"])
	assert.Contains(t, line, "time")
}
