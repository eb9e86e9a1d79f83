package app

import (
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger("development", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("development", "chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestCronPanicsGoToZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cl := newCronLogger(zap.New(core))

	job := cron.NewChain(cron.Recover(cl)).Then(cron.FuncJob(func() { panic("sync exploded") }))
	require.NotPanics(t, job.Run)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cron", entries[0].LoggerName)
	assert.Contains(t, entries[0].ContextMap()["error"], "sync exploded")

	cl.Info("wake", "now", "03:00")
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.DebugLevel).Len())
}
