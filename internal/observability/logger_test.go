package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/labai-app/tracking-agent/internal/config"
)

// syncBuffer is a zapcore.WriteSyncer over a string builder.
type syncBuffer struct {
	strings.Builder
}

func (b *syncBuffer) Sync() error { return nil }

func testLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "test-agent",
	}
}

func TestInitialize_SetsGlobalLogger(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(testLoggerConfig(), buf)

	logger := GetLogger()
	require.NotNil(t, logger)

	logger.Info("hello from the agent")
	assert.Contains(t, buf.String(), "hello from the agent")
	assert.Contains(t, buf.String(), "test-agent")
}

func TestInitialize_OnlyFirstCallWins(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(testLoggerConfig(), first)
	Initialize(testLoggerConfig(), second)

	GetLogger().Info("routed once")
	assert.Contains(t, first.String(), "routed once")
	assert.Empty(t, second.String())
}

func TestInitialize_InvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := testLoggerConfig()
	cfg.Level = "chatty"
	buf := &syncBuffer{}
	Initialize(cfg, buf)

	GetLogger().Debug("suppressed")
	GetLogger().Info("visible")
	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "visible")
}

func TestGetLogger_BeforeInitializeFallsBack(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger, "a caller must never receive a nil logger")
}

func TestGetEncoder_Formats(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "probe"}

	jsonBuf, err := getEncoder(config.LoggerConfig{Format: "json"}).EncodeEntry(entry, nil)
	require.NoError(t, err)
	assert.Contains(t, jsonBuf.String(), `"msg":"probe"`)

	consoleBuf, err := getEncoder(config.LoggerConfig{Format: "console"}).EncodeEntry(entry, nil)
	require.NoError(t, err)
	assert.Contains(t, consoleBuf.String(), "probe")
	assert.Contains(t, consoleBuf.String(), colorGreen, "console output colorizes the level")
}

func TestSync_NoopWithoutLogger(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	// Must not panic with no global logger installed.
	Sync()
}
