package logging

import (
	"context"
	"log/slog"
)

// SlogLogger adapts a *slog.Logger to Logger. Error values passed as
// attribute values are logged as their message string, the way the zap
// backend renders them, so both backends emit the same "error" field.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelDebug, msg, args)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelInfo, msg, args)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelWarn, msg, args)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelError, msg, args)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(errorStrings(args)...)}
}

func (s *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if !s.l.Enabled(ctx, level) {
		return
	}
	s.l.Log(ctx, level, msg, errorStrings(args)...)
}

// errorStrings returns args with every non-nil error replaced by its
// message. args is copied only when something changes.
func errorStrings(args []any) []any {
	var out []any
	for i, a := range args {
		err, ok := a.(error)
		if !ok || err == nil {
			continue
		}
		if out == nil {
			out = append([]any(nil), args...)
		}
		out[i] = err.Error()
	}
	if out == nil {
		return args
	}
	return out
}
