// Package obslog defines the engine's logger capability interface and a
// zap-backed default implementation, following the logger-agnostic
// interface + adapter pattern (core depends on the interface, a thin
// adapter binds it to a concrete backend).
package obslog

import (
	"go.uber.org/zap"
)

// Logger is the logging capability every core package depends on.
// Structured fields are passed as alternating key/value pairs, matching
// zap's SugaredLogger convention.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	With(keyvals ...any) Logger
}

// zapAdapter adapts a zap.SugaredLogger to Logger.
type zapAdapter struct {
	sugar *zap.SugaredLogger
}

// NewZap wraps z as a Logger. Passing nil returns a no-op Logger.
func NewZap(z *zap.Logger) Logger {
	if z == nil {
		return NewNop()
	}
	return &zapAdapter{sugar: z.Sugar()}
}

func (a *zapAdapter) Debugf(format string, args ...any) { a.sugar.Debugf(format, args...) }
func (a *zapAdapter) Infof(format string, args ...any)  { a.sugar.Infof(format, args...) }
func (a *zapAdapter) Warnf(format string, args ...any)  { a.sugar.Warnf(format, args...) }
func (a *zapAdapter) Errorf(format string, args ...any) { a.sugar.Errorf(format, args...) }
func (a *zapAdapter) With(keyvals ...any) Logger {
	return &zapAdapter{sugar: a.sugar.With(keyvals...)}
}

// Default builds a production-configured zap.Logger and wraps it.
func Default() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		return NewNop()
	}
	return NewZap(z)
}

// nopLogger discards everything; used in tests and as a safe zero value.
type nopLogger struct{}

// NewNop returns a Logger that discards all output.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) With(...any) Logger    { return nopLogger{} }
