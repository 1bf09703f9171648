package logger

import (
	"context"
	"io"
	"log"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// HCLog returns an hclog logger whose entries are forwarded to l. The
// hclog output itself is discarded; level filtering is left to l.
func HCLog(name string, l *slog.Logger) hclog.InterceptLogger {
	hl := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclog.Trace,
		Output: io.Discard,
	})
	hl.RegisterSink(&slogSink{logger: l})
	return hl
}

// StdLogger returns a standard library logger for libraries that take
// one. Levels are inferred from "[DEBUG]"-style message prefixes.
func StdLogger(name string, l *slog.Logger) *log.Logger {
	return HCLog(name, l).StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})
}

type slogSink struct {
	logger *slog.Logger
}

func (s *slogSink) Accept(name string, level hclog.Level, msg string, args ...interface{}) {
	attrs := make([]any, 0, len(args)+2)
	if name != "" {
		attrs = append(attrs, "component", name)
	}
	attrs = append(attrs, args...)
	s.logger.Log(context.Background(), slogLevel(level), msg, attrs...)
}

func slogLevel(level hclog.Level) slog.Level {
	switch level {
	case hclog.Trace, hclog.Debug:
		return slog.LevelDebug
	case hclog.Warn:
		return slog.LevelWarn
	case hclog.Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
