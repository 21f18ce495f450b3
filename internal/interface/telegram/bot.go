// Package telegram implements the Telegram interface of the quest bot.
// This package is the entry point for all Telegram interactions, handling
// updates, routing them to handlers and managing the bot lifecycle.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/questforge/questbot/internal/infrastructure/external/telegram"
	"github.com/questforge/questbot/internal/interface/telegram/handler"
	"github.com/questforge/questbot/internal/interface/telegram/middleware"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Update receiving modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Mode is the update receiving mode: "polling" or "webhook".
	Mode string

	// WebhookURL is the public URL Telegram posts updates to.
	WebhookURL string

	// WebhookSecret is sent back by Telegram in X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret string

	// PollingTimeout is the long polling timeout in seconds.
	PollingTimeout int

	// Debug enables debug logging.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger

	// AllowedUpdates specifies which update types to receive.
	AllowedUpdates []string

	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// UpdateTimeout bounds the processing of one update.
	UpdateTimeout time.Duration

	// GracefulShutdownTimeout is the timeout for graceful shutdown.
	GracefulShutdownTimeout time.Duration
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Mode:                    ModePolling,
		PollingTimeout:          30,
		Logger:                  slog.Default(),
		AllowedUpdates:          []string{"message", "callback_query"},
		MaxConcurrentUpdates:    100,
		UpdateTimeout:           2 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// API is the part of the Bot API client the bot needs.
type API interface {
	Sender
	GetMe(ctx context.Context) (*telegram.User, error)
	StartPolling(ctx context.Context, timeout int, handler telegram.UpdateHandler) error
	SetWebhook(ctx context.Context, url, secretToken string, allowedUpdates []string) error
	DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error
}

// BotDependencies contains the collaborators of the bot.
type BotDependencies struct {
	API    API
	Router *Router

	Auth             *middleware.AuthMiddleware
	RateLimiter      *middleware.RateLimiter
	GenerateLimiter  *middleware.RateLimiter
	Recovery         *middleware.RecoveryMiddleware
	Metrics          *middleware.MetricsMiddleware
	ChatLog          *middleware.ChatLog
	ExpensiveCommand func(command string) bool
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the main Telegram bot controller.
type Bot struct {
	config BotConfig
	deps   BotDependencies
	logger *slog.Logger

	// Lifecycle management
	running   bool
	runningMu sync.RWMutex
	updateSem chan struct{}
	wg        sync.WaitGroup

	stats *BotStats
}

// BotStats holds runtime statistics.
type BotStats struct {
	mu              sync.RWMutex
	StartedAt       time.Time
	UpdatesReceived int64
	UpdatesHandled  int64
	ErrorsCount     int64
	CommandsCount   map[string]int64
}

// NewBot creates a new Telegram bot.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if deps.API == nil || deps.Router == nil || deps.Auth == nil {
		return nil, errors.New("telegram bot: api, router and auth are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = DefaultBotConfig().MaxConcurrentUpdates
	}
	if deps.RateLimiter == nil {
		deps.RateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	}
	if deps.GenerateLimiter == nil {
		deps.GenerateLimiter = middleware.NewRateLimiter(middleware.GenerateRateLimitConfig())
	}
	if deps.Recovery == nil {
		deps.Recovery = middleware.NewRecoveryMiddleware(middleware.DefaultRecoveryConfig())
	}
	if deps.Metrics == nil {
		deps.Metrics = middleware.NewMetricsMiddleware()
	}
	if deps.ExpensiveCommand == nil {
		deps.ExpensiveCommand = func(command string) bool {
			return command == handler.CmdDaily || command == handler.CmdWeekly
		}
	}

	return &Bot{
		config:    config,
		deps:      deps,
		logger:    config.Logger.With(logger.Component("bot")),
		updateSem: make(chan struct{}, config.MaxConcurrentUpdates),
		stats:     &BotStats{CommandsCount: make(map[string]int64)},
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start verifies the token and starts receiving updates. In polling mode it
// blocks until ctx is done; in webhook mode it registers the webhook and
// returns, leaving delivery to the HTTP server.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.stats.mu.Lock()
	b.stats.StartedAt = time.Now()
	b.stats.mu.Unlock()
	b.runningMu.Unlock()

	b.logger.Info("starting telegram bot",
		slog.String("mode", b.config.Mode),
		slog.Bool("debug", b.config.Debug),
	)

	if err := b.verifyToken(ctx); err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}

	go b.deps.RateLimiter.Run(ctx, 5*time.Minute)
	go b.deps.GenerateLimiter.Run(ctx, 5*time.Minute)

	switch b.config.Mode {
	case ModePolling:
		if err := b.deps.API.DeleteWebhook(ctx, false); err != nil {
			b.logger.Warn("failed to delete webhook before polling", logger.Err(err))
		}
		return b.deps.API.StartPolling(ctx, b.config.PollingTimeout, b.Dispatch)
	case ModeWebhook:
		if b.config.WebhookURL == "" {
			return errors.New("webhook URL is required for webhook mode")
		}
		if err := b.deps.API.SetWebhook(ctx, b.config.WebhookURL, b.config.WebhookSecret, b.config.AllowedUpdates); err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
		b.logger.Info("webhook registered", slog.String("url", b.config.WebhookURL))
		return nil
	default:
		return fmt.Errorf("unknown bot mode: %s", b.config.Mode)
	}
}

// Stop waits for in-flight updates to finish.
func (b *Bot) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	b.runningMu.Unlock()

	b.logger.Info("stopping telegram bot")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timeout := b.config.GracefulShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultBotConfig().GracefulShutdownTimeout
	}

	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-time.After(timeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		b.logger.Warn("context cancelled during shutdown")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the bot is currently running.
func (b *Bot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

func (b *Bot) verifyToken(ctx context.Context) error {
	me, err := b.deps.API.GetMe(ctx)
	if err != nil {
		return err
	}

	b.logger.Info("bot verified",
		slog.Int64("id", me.ID),
		slog.String("username", me.Username),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// Dispatch processes an update in the background. It blocks only while all
// worker slots are busy. Updates from polling and webhook both enter here.
func (b *Bot) Dispatch(ctx context.Context, update *telegram.Update) error {
	select {
	case b.updateSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.updateSem }()

		// Detached from the caller: a webhook request ends before the update does.
		uctx := context.WithoutCancel(ctx)
		if b.config.UpdateTimeout > 0 {
			var cancel context.CancelFunc
			uctx, cancel = context.WithTimeout(uctx, b.config.UpdateTimeout)
			defer cancel()
		}
		_ = b.HandleUpdate(uctx, update)
	}()
	return nil
}

// HandleUpdate processes a single Telegram update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	b.stats.mu.Lock()
	b.stats.UpdatesReceived++
	b.stats.mu.Unlock()

	ctx, _ = logger.WithRequestID(ctx)
	start := time.Now()

	var err error
	switch {
	case update.Message != nil:
		err = b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		err = b.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		return nil
	}

	if err != nil {
		b.stats.mu.Lock()
		b.stats.ErrorsCount++
		b.stats.mu.Unlock()
		b.logger.ErrorContext(ctx, "failed to handle update",
			slog.Int64("update_id", update.UpdateID),
			logger.Err(err),
			logger.Latency(time.Since(start)),
		)
		return err
	}

	b.stats.mu.Lock()
	b.stats.UpdatesHandled++
	b.stats.mu.Unlock()
	return nil
}

// handleMessage processes commands and menu text.
func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.From == nil || msg.Chat == nil || msg.From.IsBot || msg.Text == "" {
		return nil
	}

	telegramID := msg.From.ID
	chatID := msg.Chat.ID

	command := telegram.ExtractCommand(msg)
	args := telegram.ExtractCommandArgs(msg)

	name := command
	if name == "" {
		name = "text"
	}
	b.stats.mu.Lock()
	b.stats.CommandsCount[name]++
	b.stats.mu.Unlock()

	limiter := b.deps.RateLimiter
	if b.deps.ExpensiveCommand(command) {
		limiter = b.deps.GenerateLimiter
	}
	if rl := limiter.Check(ctx, telegramID); !rl.Allowed {
		if rl.Banned {
			return nil
		}
		return b.sendPlain(ctx, chatID, presenter.TooFast)
	}

	auth, err := b.deps.Auth.Authenticate(ctx, middleware.Profile{
		TelegramID: telegramID,
		Username:   msg.From.Username,
		FirstName:  msg.From.FirstName,
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "auth error", logger.TelegramID(telegramID), logger.Err(err))
		return b.sendPlain(ctx, chatID, presenter.GenericError)
	}

	ctx = middleware.ContextWithTelegramID(ctx, telegramID)
	ctx = middleware.ContextWithUser(ctx, auth.User)
	b.deps.ChatLog.Inbound(ctx, auth.User.ID, msg.Text)

	cmdCtx := CommandContext{
		TelegramID: telegramID,
		ChatID:     chatID,
		MessageID:  msg.MessageID,
		Args:       args,
		User:       auth.User,
	}

	finish := b.deps.Metrics.Begin(name)
	res := b.deps.Recovery.RecoverWithHandler(ctx, telegramID, name, func() error {
		if command != "" {
			return b.deps.Router.HandleCommand(ctx, command, cmdCtx)
		}
		_, err := b.deps.Router.HandleText(ctx, msg.Text, cmdCtx)
		return err
	})

	switch {
	case res.Recovered:
		finish(res.PanicInfo.Err)
		return b.sendPlain(ctx, chatID, res.UserMessage)
	case res.Err != nil:
		finish(res.Err)
		b.logger.ErrorContext(ctx, "command failed",
			slog.String("command", name),
			logger.TelegramID(telegramID),
			logger.Err(res.Err),
		)
		if telegram.IsUserBlocked(res.Err) {
			return nil
		}
		return b.sendPlain(ctx, chatID, presenter.GenericError)
	default:
		finish(nil)
		return nil
	}
}

// handleCallbackQuery processes inline button presses.
func (b *Bot) handleCallbackQuery(ctx context.Context, query *telegram.CallbackQuery) error {
	if query.From == nil {
		return nil
	}
	telegramID := query.From.ID

	var chatID, messageID int64
	if query.Message != nil {
		messageID = query.Message.MessageID
		if query.Message.Chat != nil {
			chatID = query.Message.Chat.ID
		}
	}
	if chatID == 0 {
		chatID = telegramID
	}

	if rl := b.deps.RateLimiter.Check(ctx, telegramID); !rl.Allowed {
		return b.deps.API.AnswerCallbackQuery(ctx, query.ID, presenter.TooFast, false)
	}

	auth, err := b.deps.Auth.Authenticate(ctx, middleware.Profile{
		TelegramID: telegramID,
		Username:   query.From.Username,
		FirstName:  query.From.FirstName,
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "auth error", logger.TelegramID(telegramID), logger.Err(err))
		return b.deps.API.AnswerCallbackQuery(ctx, query.ID, presenter.GenericError, true)
	}

	ctx = middleware.ContextWithTelegramID(ctx, telegramID)
	ctx = middleware.ContextWithUser(ctx, auth.User)

	finish := b.deps.Metrics.Begin("callback")
	res := b.deps.Recovery.RecoverWithHandler(ctx, telegramID, "callback", func() error {
		return b.deps.Router.HandleCallback(ctx, CallbackContext{
			TelegramID: telegramID,
			ChatID:     chatID,
			MessageID:  messageID,
			QueryID:    query.ID,
			Data:       query.Data,
			User:       auth.User,
		})
	})

	switch {
	case res.Recovered:
		finish(res.PanicInfo.Err)
		return b.deps.API.AnswerCallbackQuery(ctx, query.ID, presenter.GenericError, true)
	case res.Err != nil:
		finish(res.Err)
		b.logger.ErrorContext(ctx, "callback failed",
			logger.TelegramID(telegramID),
			slog.String("data", query.Data),
			logger.Err(res.Err),
		)
		// The query may already be answered; a second answer fails harmlessly.
		_ = b.deps.API.AnswerCallbackQuery(ctx, query.ID, presenter.GenericError, true)
		return nil
	default:
		finish(nil)
		return nil
	}
}

func (b *Bot) sendPlain(ctx context.Context, chatID int64, text string) error {
	_, err := b.deps.API.SendMessage(ctx, telegram.SendMessageParams{ChatID: chatID, Text: text})
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// StatsSnapshot is a copy of BotStats safe to serialize.
type StatsSnapshot struct {
	StartedAt       time.Time        `json:"started_at"`
	UpdatesReceived int64            `json:"updates_received"`
	UpdatesHandled  int64            `json:"updates_handled"`
	ErrorsCount     int64            `json:"errors"`
	CommandsCount   map[string]int64 `json:"commands"`
}

// GetStats returns a copy of the runtime statistics.
func (b *Bot) GetStats() StatsSnapshot {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()

	commands := make(map[string]int64, len(b.stats.CommandsCount))
	for k, v := range b.stats.CommandsCount {
		commands[k] = v
	}
	return StatsSnapshot{
		StartedAt:       b.stats.StartedAt,
		UpdatesReceived: b.stats.UpdatesReceived,
		UpdatesHandled:  b.stats.UpdatesHandled,
		ErrorsCount:     b.stats.ErrorsCount,
		CommandsCount:   commands,
	}
}

// Metrics returns the per-command counters.
func (b *Bot) Metrics() middleware.MetricsSnapshot {
	return b.deps.Metrics.Snapshot()
}
