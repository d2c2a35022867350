// Package logx is a minimal structured logging facade so modules do not bind
// to a concrete logger.
package logx

import (
	"log/slog"
	"time"
)

// Logger is a key-value structured logging interface.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is a single structured log field.
type Field struct {
	Key   string
	Value any
}

func Any(key string, value any) Field         { return Field{Key: key, Value: value} }
func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Time(key string, value time.Time) Field  { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}
func Err(err error) Field { return Field{Key: "err", Value: err} }

// slogAdapter backs Logger with the standard library slog.
type slogAdapter struct {
	l *slog.Logger
}

// NewSlog returns a Logger backed by the provided *slog.Logger.
func NewSlog(l *slog.Logger) Logger {
	return &slogAdapter{l: l}
}

func (s *slogAdapter) Debug(msg string, fields ...Field) { s.l.Debug(msg, toArgs(fields)...) }
func (s *slogAdapter) Info(msg string, fields ...Field)  { s.l.Info(msg, toArgs(fields)...) }
func (s *slogAdapter) Warn(msg string, fields ...Field)  { s.l.Warn(msg, toArgs(fields)...) }
func (s *slogAdapter) Error(msg string, fields ...Field) { s.l.Error(msg, toArgs(fields)...) }

func (s *slogAdapter) With(fields ...Field) Logger {
	return &slogAdapter{l: s.l.With(toArgs(fields)...)}
}

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}
