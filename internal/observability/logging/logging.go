// Package logging builds the process-wide structured logger and the
// context helpers used to carry request/stream identifiers and a
// request-scoped logger through the call chain.
package logging

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ScopeCreep-zip/spiritstream/internal/observability/metrics"
)

// Config captures options for configuring the process logger.
type Config struct {
	Level  string
	Writer io.Writer
	Format string
}

// LogFormat selects the wire shape of emitted log lines.
type LogFormat string

const (
	FormatJSON    LogFormat = "json"
	FormatConsole LogFormat = "console"
)

// Init builds a logger from cfg and installs it as zerolog's package-level
// default, returning the same logger for callers that want a local handle.
func Init(cfg Config) zerolog.Logger {
	logger := New(cfg)
	zerolog.DefaultContextLogger = &logger
	return logger
}

// New builds a structured zerolog.Logger using the provided configuration.
// It never mutates global state; use Init for that.
func New(cfg Config) zerolog.Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}
	if LogFormat(strings.ToLower(strings.TrimSpace(cfg.Format))) == FormatConsole {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	return zerolog.New(writer).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info", "":
		fallthrough
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a logger annotated with the provided component field.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	streamIDKey  contextKey = "stream_id"
	loggerKey    contextKey = "logger"
)

// ContextWithRequestID adds the provided request ID to the context when it is non-empty.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, trimmed)
}

// RequestIDFromContext extracts the request ID previously stored on the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(requestIDKey).(string)
	return value, ok && value != ""
}

// ContextWithStreamID adds the provided group/stream ID to the context when it is non-empty.
func ContextWithStreamID(ctx context.Context, id string) context.Context {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ctx
	}
	return context.WithValue(ctx, streamIDKey, trimmed)
}

// StreamIDFromContext extracts the group/stream ID previously stored on the context.
func StreamIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(streamIDKey).(string)
	return value, ok && value != ""
}

// ContextWithLogger attaches a logger to the context.
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves a logger previously stored on the context,
// falling back to the zerolog default context logger when none is set.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
			return logger
		}
	}
	return zerolog.Ctx(ctx).With().Logger()
}

// WithContext returns a logger annotated with request and stream IDs held in the context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	builder := logger.With()
	if requestID, ok := RequestIDFromContext(ctx); ok {
		builder = builder.Str("request_id", requestID)
	}
	if streamID, ok := StreamIDFromContext(ctx); ok {
		builder = builder.Str("group_id", streamID)
	}
	return builder.Logger()
}

// RequestLoggerConfig configures the HTTP request logging middleware.
type RequestLoggerConfig struct {
	Logger            zerolog.Logger
	DisableRemoteAddr bool
	AdditionalFields  func(*http.Request, int, time.Duration) map[string]any
}

// RequestLogger returns middleware that logs HTTP requests using the
// provided configuration: method, path, status, duration, and optionally
// the remote address plus any caller-supplied fields.
func RequestLogger(cfg RequestLoggerConfig) func(http.Handler) http.Handler {
	baseLogger := cfg.Logger

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := metrics.NewResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)

			duration := time.Since(start)
			requestLogger := WithContext(r.Context(), baseLogger)

			event := requestLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", recorder.Status()).
				Dur("duration", duration)

			if !cfg.DisableRemoteAddr {
				event = event.Str("remote_addr", r.RemoteAddr)
			}

			if cfg.AdditionalFields != nil {
				for k, v := range cfg.AdditionalFields(r, recorder.Status(), duration) {
					event = event.Interface(k, v)
				}
			}

			event.Msg("request completed")
		})
	}
}
