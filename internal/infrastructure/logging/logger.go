package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/dh2mqtt/internal/infrastructure/config"
)

// serviceName is attached to every record as the "service" field.
const serviceName = "dh2mqtt"

// Logger is the relay's structured logger. Its Info/Warn/Error/Debug
// methods satisfy the narrow Logger interfaces declared by connection,
// devicehub, mqtt, journal and api, so a *Logger can be handed to any of them.
type Logger struct {
	*slog.Logger
}

// New builds a Logger for cfg, writing to stderr when cfg.Output says so
// and to stdout otherwise.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, destination(cfg.Output))
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	h := handlerFor(cfg.Format, w, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return &Logger{Logger: slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

// Nop returns a Logger that drops everything.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))}
}

// With returns a child Logger carrying args on every record.
//
//	connLog := log.With("component", "connection")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// handlerFor picks text for "text" and JSON for anything else.
func handlerFor(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps debug, info, warn(ing) and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
