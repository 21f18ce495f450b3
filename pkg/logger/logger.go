// Package logger configures log/slog for the quest bot and provides
// context propagation and typed attribute helpers.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"

	// FormatPretty is colored console output for local development.
	FormatPretty Format = "pretty"
)

// Options configures the logger.
type Options struct {
	Level     string
	Format    Format
	Output    io.Writer
	AddSource bool

	// Service is attached to every record when set.
	Service string
}

// DefaultOptions returns JSON logging at info level to stdout.
func DefaultOptions() Options {
	return Options{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stdout,
	}
}

// ParseLevel parses a level name; unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New builds a slog.Logger from options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatText:
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	case FormatPretty:
		handler = tint.NewHandler(opts.Output, &tint.Options{
			Level:      handlerOpts.Level,
			AddSource:  opts.AddSource,
			TimeFormat: time.TimeOnly,
		})
	default:
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	}

	l := slog.New(handler)
	if opts.Service != "" {
		l = l.With(slog.String("service", opts.Service))
	}
	return l
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext stores the logger in the context.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger from the context or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID attaches a new request ID to the context logger.
// Returns the derived context and the ID.
func WithRequestID(ctx context.Context) (context.Context, string) {
	id := NewRequestID()
	return WithContext(ctx, FromContext(ctx).With(slog.String("request_id", id))), id
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTRIBUTES
// ══════════════════════════════════════════════════════════════════════════════

func TelegramID(id int64) slog.Attr     { return slog.Int64("telegram_id", id) }
func UserID(id int64) slog.Attr         { return slog.Int64("user_id", id) }
func QuestID(id int64) slog.Attr        { return slog.Int64("quest_id", id) }
func QuestType(t string) slog.Attr      { return slog.String("quest_type", t) }
func ExpAmount(exp int) slog.Attr       { return slog.Int("exp_amount", exp) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Operation(name string) slog.Attr   { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }

// Err returns an error attribute; nil errors produce an empty attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
