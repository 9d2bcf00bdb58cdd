package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		" WARN ":  LevelWarn,
		"Error":   LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))
	ctx := context.Background()

	l.Debug(ctx, "frame", map[string]interface{}{"bytes": 12})
	l.Info(ctx, "connected", map[string]interface{}{"stream": "btcusdt@kline_1m"}, map[string]interface{}{"generation": 2})
	l.Warn(ctx, "reconnect scheduled")
	l.Error(ctx, errors.New("boom"), "sink failed", map[string]interface{}{"sink": "nats"})

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(12), entries[0].ContextMap()["bytes"])

	info := entries[1].ContextMap()
	assert.Equal(t, "btcusdt@kline_1m", info["stream"])
	assert.Equal(t, int64(2), info["generation"])

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)

	errEntry := entries[3]
	assert.Equal(t, zapcore.ErrorLevel, errEntry.Level)
	assert.Equal(t, "boom", errEntry.ContextMap()["error"])
	assert.Equal(t, "nats", errEntry.ContextMap()["sink"])
}

func TestLevelFiltering(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, LevelDebug.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, LevelInfo.zapLevel())
	assert.Equal(t, zapcore.WarnLevel, LevelWarn.zapLevel())
	assert.Equal(t, zapcore.ErrorLevel, LevelError.zapLevel())

	NewNop().Info(context.Background(), "discarded")
}
