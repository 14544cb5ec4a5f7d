package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestNewFiltersDebugUnlessVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "mrisegment", false)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "mrisegment")
}

func TestNewVerboseInstallsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "test", true)
	log.Debug().Int("n", 3).Msg("recompute")

	assert.Contains(t, buf.String(), "recompute")
	assert.Contains(t, buf.String(), "test")
}
