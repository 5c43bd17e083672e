package envconfig

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogLevelDefaultsToInfo(t *testing.T) {
	t.Setenv("LOCALINFER_DEBUG", "")
	assert.Equal(t, slog.LevelInfo, LogLevel())
}

func TestLogLevelDebugBool(t *testing.T) {
	t.Setenv("LOCALINFER_DEBUG", "true")
	assert.Equal(t, slog.LevelDebug, LogLevel())
}

func TestLogLevelTraceInteger(t *testing.T) {
	t.Setenv("LOCALINFER_DEBUG", "2")
	assert.Equal(t, slog.Level(-8), LogLevel())
}

func TestVarTrimsQuotesAndWhitespace(t *testing.T) {
	t.Setenv("LOCALINFER_TEST_VAR", `  "hello"  `)
	assert.Equal(t, "hello", Var("LOCALINFER_TEST_VAR"))
}

func TestLoadTimeoutParsesDuration(t *testing.T) {
	t.Setenv("LOCALINFER_LOAD_TIMEOUT", "30s")
	assert.Equal(t, 30*time.Second, LoadTimeout())
}

func TestLoadTimeoutFallsBackOnInvalid(t *testing.T) {
	t.Setenv("LOCALINFER_LOAD_TIMEOUT", "not-a-duration")
	assert.Equal(t, 5*time.Minute, LoadTimeout())
}

func TestDeviceDefaultsToCPU(t *testing.T) {
	t.Setenv("LOCALINFER_DEVICE", "")
	assert.Equal(t, "cpu", Device())
}
