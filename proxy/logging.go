package proxy

import "log/slog"

// Sink is the injected logging collaborator (spec.md §6): the core emits
// structured events at debug/info/error and assumes non-blocking
// semantics. The default implementation is a thin slog adapter; embedders
// may substitute their own.
type Sink interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a Sink that always includes the given key/value pairs,
	// mirroring slog.Logger.With.
	With(args ...any) Sink
}

// slogSink adapts a *slog.Logger to Sink.
type slogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger as a Sink. A nil logger falls back to
// slog.Default().
func NewSlogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return slogSink{logger: logger}
}

func (s slogSink) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s slogSink) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s slogSink) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func (s slogSink) With(args ...any) Sink {
	return slogSink{logger: s.logger.With(args...)}
}

func defaultSink(cfg Config) Sink {
	if cfg.Sink != nil {
		return cfg.Sink
	}
	return NewSlogSink(slog.Default())
}
