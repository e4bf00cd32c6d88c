package logger

import (
	"context"
	"testing"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetLoggerLevel(t *testing.T) {
	assert.Equal(t, interfaces.DebugLevel, GetLoggerLevel("debug"))
	assert.Equal(t, interfaces.ErrorLevel, GetLoggerLevel("error"))
	assert.Equal(t, interfaces.InfoLevel, GetLoggerLevel("unknown"))
}

func TestZapLogger_SetLevelPropagatesToChildren(t *testing.T) {
	l := &ZapLogger{logger: zap.NewNop().Sugar(), level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
	child := l.WithTenant("tenant-1")

	l.SetLevel(interfaces.ErrorLevel)

	assert.Equal(t, interfaces.ErrorLevel, l.GetLevel())
	assert.Equal(t, interfaces.ErrorLevel, child.GetLevel())
}

func TestZapLogger_ContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core, zapcore.DebugLevel)

	ctx := context.WithValue(context.Background(), ctxkeys.RequestID, "req-1")
	ctx = ctxkeys.WithTenant(ctx, "tenant-1")
	ctx = ctxkeys.WithAccount(ctx, "acc-1", "trendyol")

	l.InfoWithContext(ctx, "Синхронизация аккаунта завершена",
		interfaces.LogField{Key: "orders_processed", Value: 3})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "tenant-1", fields["tenant_id"])
	assert.Equal(t, "acc-1", fields["account_id"])
	assert.Equal(t, "trendyol", fields["platform"])
	assert.EqualValues(t, 3, fields["orders_processed"])
	assert.NotContains(t, fields, "trace_id")
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core, zapcore.InfoLevel)

	l.Debug("скрыто")
	l.Info("видно")
	l.SetLevel(interfaces.WarnLevel)
	l.Info("скрыто")
	l.Warn("видно")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.InfoLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
}

func TestZapLogger_DoesNotMutateArgs(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core, zapcore.DebugLevel)

	args := []interface{}{interfaces.LogField{Key: "k", Value: "v"}}
	l.Info("сообщение", args...)

	assert.IsType(t, interfaces.LogField{}, args[0])
}

func TestZapLogger_WithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core, zapcore.DebugLevel).
		WithFields(interfaces.LogField{Key: "component", Value: "price_push"})

	l.Error("ошибка")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "price_push", logs.All()[0].ContextMap()["component"])
}
