package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestNewLoggerWritesBothFiles(t *testing.T) {
	dir := t.TempDir()

	l, err := newLogger(Options{Level: "debug", Dir: dir})
	require.NoError(t, err)

	l.Info("бэктест завершен", zap.Int("bars", 10))
	require.NoError(t, l.Sync())

	readable, err := os.ReadFile(filepath.Join(dir, ReadableFile))
	require.NoError(t, err)
	assert.Contains(t, string(readable), "бэктест завершен")

	jsonLog, err := os.ReadFile(filepath.Join(dir, JSONFile))
	require.NoError(t, err)
	assert.Contains(t, string(jsonLog), `"bars":10`)
}

func TestHelpersUseInjectedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Debug("d")
	Info("i")
	Warn("w", zap.String("k", "v"))
	Error("e")

	require.Equal(t, 4, logs.Len())
	assert.Equal(t, "v", logs.FilterMessage("w").All()[0].ContextMap()["k"])
}

func TestGetLoggerDefaultsToNop(t *testing.T) {
	SetLogger(nil)
	assert.NotNil(t, GetLogger())
	Info("никуда не пишется")
}
