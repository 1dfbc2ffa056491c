package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

func (imp *impl) Debug(args ...interface{}) {
	imp.sugar.Debug(args...)
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.sugar.Debugf(template, args...)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.sugar.Debugw(msg, keysAndValues...)
}

// CDebugf logs at debug level, or at info level when the logger would drop debug entries but
// the context asked for debug output.
func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	if !imp.level.Enabled(zapcore.DebugLevel) && IsDebugMode(ctx) {
		imp.sugar.Infof(template, args...)
		return
	}
	imp.sugar.Debugf(template, args...)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if !imp.level.Enabled(zapcore.DebugLevel) && IsDebugMode(ctx) {
		imp.sugar.Infow(msg, keysAndValues...)
		return
	}
	imp.sugar.Debugw(msg, keysAndValues...)
}

func (imp *impl) Info(args ...interface{}) {
	imp.sugar.Info(args...)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.sugar.Infof(template, args...)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.sugar.Infow(msg, keysAndValues...)
}

func (imp *impl) Warn(args ...interface{}) {
	imp.sugar.Warn(args...)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.sugar.Warnf(template, args...)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.sugar.Warnw(msg, keysAndValues...)
}

func (imp *impl) Error(args ...interface{}) {
	imp.sugar.Error(args...)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.sugar.Errorf(template, args...)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.sugar.Errorw(msg, keysAndValues...)
}

func (imp *impl) CError(ctx context.Context, args ...interface{}) {
	imp.sugar.With(debugKeyFields(ctx)...).Error(args...)
}

func (imp *impl) CErrorf(ctx context.Context, template string, args ...interface{}) {
	imp.sugar.With(debugKeyFields(ctx)...).Errorf(template, args...)
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = imp.name + "." + subname
	}
	// zap joins names with "." on its own, so only the suffix is passed to Named.
	return &impl{
		name:  newName,
		level: imp.level,
		sugar: imp.sugar.Named(subname),
	}
}

func (imp *impl) SetLevel(level zapcore.Level) {
	imp.level.SetLevel(level)
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.sugar
}

func (imp *impl) Sync() error {
	return imp.sugar.Sync()
}

func debugKeyFields(ctx context.Context) []interface{} {
	if name := GetName(ctx); name != "" {
		return []interface{}{"debugKey", name}
	}
	return nil
}
