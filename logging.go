// logging.go: log/slog bridge for the Logger interface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"log/slog"
)

// SlogLogger adapts a *slog.Logger to the Logger interface.
// Keyvals are passed through as slog key/value arguments.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger. A nil logger falls back to slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, keyvals...)
}

func (l *SlogLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, keyvals...)
}

func (l *SlogLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, keyvals...)
}

func (l *SlogLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelError, msg, keyvals...)
}

// withKeyvals returns a Logger that prepends keyvals to every call.
func withKeyvals(l Logger, keyvals ...interface{}) Logger {
	if _, ok := l.(NoOpLogger); ok {
		return l
	}
	return &prefixLogger{inner: l, keyvals: keyvals}
}

type prefixLogger struct {
	inner   Logger
	keyvals []interface{}
}

func (p *prefixLogger) merge(keyvals []interface{}) []interface{} {
	out := make([]interface{}, 0, len(p.keyvals)+len(keyvals))
	out = append(out, p.keyvals...)
	return append(out, keyvals...)
}

func (p *prefixLogger) Debug(msg string, keyvals ...interface{}) {
	p.inner.Debug(msg, p.merge(keyvals)...)
}

func (p *prefixLogger) Info(msg string, keyvals ...interface{}) {
	p.inner.Info(msg, p.merge(keyvals)...)
}

func (p *prefixLogger) Warn(msg string, keyvals ...interface{}) {
	p.inner.Warn(msg, p.merge(keyvals)...)
}

func (p *prefixLogger) Error(msg string, keyvals ...interface{}) {
	p.inner.Error(msg, p.merge(keyvals)...)
}
