// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

func TestInitializeWritesThroughConfiguredSink(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "checkin-test",
	}, zapcore.AddSync(&buf))

	GetLogger().Info("attempt started")
	require.NoError(t, GetLogger().Sync())

	out := buf.String()
	assert.Contains(t, out, "attempt started")
	assert.Contains(t, out, "checkin-test")
}

func TestInitializeOnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "one"}, zapcore.AddSync(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "two"}, zapcore.AddSync(&second))

	GetLogger().Info("routed")
	_ = GetLogger().Sync()

	assert.Contains(t, first.String(), "routed")
	assert.Empty(t, second.String())
}

func TestInitializeBadLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{Level: "nonsense", Format: "json", ServiceName: "svc"}, zapcore.AddSync(&buf))

	GetLogger().Debug("hidden")
	GetLogger().Info("visible")
	_ = GetLogger().Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	assert.NotNil(t, GetLogger())
}
