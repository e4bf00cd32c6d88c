package logger

import (
	"context"
	"sync"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	instance *ZapLogger
	initErr  error
	once     sync.Once
)

// ZapLogger адаптер для Zap, реализующий LoggerPort.
// Производные логгеры (WithField, WithTenant) делят уровень с родителем.
type ZapLogger struct {
	logger *zap.SugaredLogger
	level  zap.AtomicLevel
}

// NewZapLogger создает логгер процесса на основе Zap (один на процесс)
func NewZapLogger(level string, isProduction bool) (interfaces.LoggerPort, error) {
	once.Do(func() {
		instance, initErr = build(level, isProduction)
	})
	if initErr != nil {
		return nil, initErr
	}
	return instance, nil
}

// NewWithCore оборачивает готовое ядро zap, например observer в тестах
func NewWithCore(core zapcore.Core, level zapcore.Level) *ZapLogger {
	return &ZapLogger{
		logger: zap.New(core, zap.AddCallerSkip(2)).Sugar(),
		level:  zap.NewAtomicLevelAt(level),
	}
}

// NewNopLogger возвращает логгер, который ничего не пишет
func NewNopLogger() interfaces.LoggerPort {
	return &ZapLogger{
		logger: zap.NewNop().Sugar(),
		level:  zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

func build(levelStr string, isProduction bool) (*ZapLogger, error) {
	var config zap.Config
	if isProduction {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = zapcore.InfoLevel
	}
	atomic := zap.NewAtomicLevelAt(level)
	config.Level = atomic
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	// +2: публичный метод и write
	logger, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: logger.Sugar(), level: atomic}, nil
}

// GetLoggerLevel преобразует строковый уровень логирования в LogLevel
func GetLoggerLevel(levelStr string) interfaces.LogLevel {
	switch levelStr {
	case "debug":
		return interfaces.DebugLevel
	case "warn":
		return interfaces.WarnLevel
	case "error":
		return interfaces.ErrorLevel
	case "fatal":
		return interfaces.FatalLevel
	default:
		return interfaces.InfoLevel
	}
}

var toZap = map[interfaces.LogLevel]zapcore.Level{
	interfaces.DebugLevel: zapcore.DebugLevel,
	interfaces.InfoLevel:  zapcore.InfoLevel,
	interfaces.WarnLevel:  zapcore.WarnLevel,
	interfaces.ErrorLevel: zapcore.ErrorLevel,
	interfaces.FatalLevel: zapcore.FatalLevel,
}

// keysAndValues переводит LogField в zap.Field, не трогая срез вызывающего
func keysAndValues(ctx context.Context, args []interface{}) []interface{} {
	kv := make([]interface{}, 0, len(args)+6)
	for _, arg := range args {
		if field, ok := arg.(interfaces.LogField); ok {
			kv = append(kv, zap.Any(field.Key, field.Value))
			continue
		}
		kv = append(kv, arg)
	}
	ctxkeys.EachLogged(ctx, func(name, value string) {
		kv = append(kv, zap.String(name, value))
	})
	return kv
}

func (z *ZapLogger) write(ctx context.Context, lvl zapcore.Level, msg string, args []interface{}) {
	if !z.level.Enabled(lvl) {
		return
	}
	kv := keysAndValues(ctx, args)
	switch lvl {
	case zapcore.DebugLevel:
		z.logger.Debugw(msg, kv...)
	case zapcore.InfoLevel:
		z.logger.Infow(msg, kv...)
	case zapcore.WarnLevel:
		z.logger.Warnw(msg, kv...)
	case zapcore.ErrorLevel:
		z.logger.Errorw(msg, kv...)
	default:
		// Fatalw завершает процесс
		z.logger.Fatalw(msg, kv...)
	}
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) {
	z.write(context.Background(), zapcore.DebugLevel, msg, args)
}

func (z *ZapLogger) Info(msg string, args ...interface{}) {
	z.write(context.Background(), zapcore.InfoLevel, msg, args)
}

func (z *ZapLogger) Warn(msg string, args ...interface{}) {
	z.write(context.Background(), zapcore.WarnLevel, msg, args)
}

func (z *ZapLogger) Error(msg string, args ...interface{}) {
	z.write(context.Background(), zapcore.ErrorLevel, msg, args)
}

func (z *ZapLogger) Fatal(msg string, args ...interface{}) {
	z.write(context.Background(), zapcore.FatalLevel, msg, args)
}

func (z *ZapLogger) DebugWithContext(ctx context.Context, msg string, args ...interface{}) {
	z.write(ctx, zapcore.DebugLevel, msg, args)
}

func (z *ZapLogger) InfoWithContext(ctx context.Context, msg string, args ...interface{}) {
	z.write(ctx, zapcore.InfoLevel, msg, args)
}

func (z *ZapLogger) WarnWithContext(ctx context.Context, msg string, args ...interface{}) {
	z.write(ctx, zapcore.WarnLevel, msg, args)
}

func (z *ZapLogger) ErrorWithContext(ctx context.Context, msg string, args ...interface{}) {
	z.write(ctx, zapcore.ErrorLevel, msg, args)
}

func (z *ZapLogger) WithFields(fields ...interfaces.LogField) interfaces.LoggerPort {
	kv := make([]interface{}, 0, len(fields))
	for _, field := range fields {
		kv = append(kv, zap.Any(field.Key, field.Value))
	}
	return &ZapLogger{logger: z.logger.With(kv...), level: z.level}
}

func (z *ZapLogger) WithField(key string, value interface{}) interfaces.LoggerPort {
	return &ZapLogger{logger: z.logger.With(zap.Any(key, value)), level: z.level}
}

func (z *ZapLogger) WithTenant(tenantID string) interfaces.LoggerPort {
	return z.WithField("tenant_id", tenantID)
}

// SetLevel меняет уровень у всех логгеров, порожденных от этого
func (z *ZapLogger) SetLevel(level interfaces.LogLevel) {
	lvl, ok := toZap[level]
	if !ok {
		lvl = zapcore.InfoLevel
	}
	z.level.SetLevel(lvl)
}

func (z *ZapLogger) GetLevel() interfaces.LogLevel {
	current := z.level.Level()
	if current >= zapcore.FatalLevel || current == zapcore.DPanicLevel || current == zapcore.PanicLevel {
		return interfaces.FatalLevel
	}
	for level, lvl := range toZap {
		if lvl == current {
			return level
		}
	}
	return interfaces.InfoLevel
}

func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
