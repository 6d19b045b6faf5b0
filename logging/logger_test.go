package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for input, expected := range map[string]log.Level{
		"debug":   log.DebugLevel,
		"INFO":    log.InfoLevel,
		"":        log.InfoLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
	} {
		level, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, level, input)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewRespectsLevelAndPrefix(t *testing.T) {
	var out bytes.Buffer
	logger, err := New(Options{Level: "warn", Output: &out, Prefix: "harness"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "port", 7447)
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "harness")
	assert.Contains(t, out.String(), "shown")
	assert.Contains(t, out.String(), "port=7447")

	logger.Printf("started %s", "zenohd")
	assert.Contains(t, out.String(), "started zenohd", "Printf has no level to filter on")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}
