package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY MIDDLEWARE
// Catches panics in handlers and converts them to a friendly reply.
// The stack goes to the log, never to the user.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	// Logger receives panic reports.
	Logger *slog.Logger

	// UserErrorMessage is sent to the user after a panic.
	UserErrorMessage string

	// MaxPanicsPerMinute caps how many stacks are logged per minute.
	MaxPanicsPerMinute int

	// OnPanic is called for every recovered panic.
	OnPanic func(ctx context.Context, info *PanicInfo)
}

// DefaultRecoveryConfig returns sensible defaults for recovery middleware.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger: slog.Default(),
		UserErrorMessage: "😔 Что-то пошло не так.\n\n" +
			"Попробуй ещё раз через несколько минут.",
		MaxPanicsPerMinute: 100,
	}
}

// PanicInfo contains information about a recovered panic.
type PanicInfo struct {
	Err        error
	Value      any
	Stack      string
	TelegramID int64
	Command    string
	Timestamp  time.Time
}

// RecoveryMiddleware recovers from panics raised by handlers.
type RecoveryMiddleware struct {
	config RecoveryConfig
	log    *slog.Logger

	mu     sync.Mutex
	count  int
	window time.Time
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(config RecoveryConfig) *RecoveryMiddleware {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.UserErrorMessage == "" {
		config.UserErrorMessage = DefaultRecoveryConfig().UserErrorMessage
	}
	return &RecoveryMiddleware{
		config: config,
		log:    config.Logger.With(logger.Component("recovery")),
	}
}

// RecoveryResult represents the outcome of a guarded handler call.
type RecoveryResult struct {
	// Recovered indicates if a panic was recovered.
	Recovered bool

	// PanicInfo contains panic details when Recovered is set.
	PanicInfo *PanicInfo

	// UserMessage is the reply to show after a panic.
	UserMessage string

	// Err is the error returned by the handler when it did not panic.
	Err error
}

// RecoverWithHandler runs handler and converts a panic into a RecoveryResult.
func (m *RecoveryMiddleware) RecoverWithHandler(
	ctx context.Context,
	telegramID int64,
	command string,
	handler func() error,
) (result *RecoveryResult) {
	defer func() {
		if r := recover(); r != nil {
			result = m.handlePanic(ctx, r, telegramID, command)
		}
	}()

	return &RecoveryResult{Err: handler()}
}

func (m *RecoveryMiddleware) handlePanic(ctx context.Context, value any, telegramID int64, command string) *RecoveryResult {
	info := &PanicInfo{
		Err:        toError(value),
		Value:      value,
		TelegramID: telegramID,
		Command:    command,
		Timestamp:  time.Now(),
	}

	if m.allow(info.Timestamp) {
		info.Stack = string(debug.Stack())
		m.log.ErrorContext(ctx, "handler panic recovered",
			logger.TelegramID(telegramID),
			slog.String("command", command),
			logger.Err(info.Err),
			slog.String("stack", info.Stack),
		)
	}

	if m.config.OnPanic != nil {
		m.config.OnPanic(ctx, info)
	}

	return &RecoveryResult{
		Recovered:   true,
		PanicInfo:   info,
		UserMessage: m.config.UserErrorMessage,
	}
}

// allow limits stack logging during panic storms.
func (m *RecoveryMiddleware) allow(now time.Time) bool {
	if m.config.MaxPanicsPerMinute <= 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.window) > time.Minute {
		m.count = 0
		m.window = now
	}
	if m.count >= m.config.MaxPanicsPerMinute {
		return false
	}
	m.count++
	return true
}

func toError(value any) error {
	switch v := value.(type) {
	case error:
		return v
	case string:
		return fmt.Errorf("panic: %s", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}
