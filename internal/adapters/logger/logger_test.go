package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/cellar/internal/adapters/logger"
	"go.trai.ch/zerr"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info")

	log.Debug("hidden", "step", "zlib")
	log.Info("building", "step", "zlib")
	log.Warn("retrying", "attempt", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=building step=zlib")
	assert.Contains(t, out, "level=WARN msg=retrying attempt=2")

	log.SetLevel("debug")
	log.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

func TestLogger_ErrorMetadata(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info")

	log.Error(zerr.With(zerr.Wrap(zerr.New("exit status 2"), "command failed"), "exit_code", 2))
	log.Error(nil)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "level=ERROR"))
	assert.Contains(t, out, "command failed: exit status 2")
	assert.Contains(t, out, "exit_code=2")
}

func TestLogger_SetOutput(t *testing.T) {
	var first, second bytes.Buffer
	log := logger.NewWithWriter(&first, "info")

	log.SetOutput(&second)
	log.Info("moved")

	assert.Empty(t, first.String())
	assert.Contains(t, second.String(), "msg=moved")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", logger.ParseLevel("Debug").String())
	assert.Equal(t, "WARN", logger.ParseLevel("warning").String())
	assert.Equal(t, "ERROR", logger.ParseLevel("error").String())
	assert.Equal(t, "INFO", logger.ParseLevel("loud").String())
}
