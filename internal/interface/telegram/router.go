package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/internal/infrastructure/external/telegram"
	"github.com/questforge/questbot/internal/interface/telegram/handler"
	"github.com/questforge/questbot/internal/interface/telegram/handler/callback"
	"github.com/questforge/questbot/internal/interface/telegram/middleware"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables verbose routing logs.
	Debug bool

	// ChatLog records outgoing replies. May be nil.
	ChatLog *middleware.ChatLog
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT TYPES
// ══════════════════════════════════════════════════════════════════════════════

// CommandContext contains context for a command or menu text.
type CommandContext struct {
	// TelegramID is the sender's Telegram ID.
	TelegramID int64

	// ChatID is the chat where the message was sent.
	ChatID int64

	// MessageID is the ID of the incoming message.
	MessageID int64

	// Args is the text after the command.
	Args string

	// User is the registered sender.
	User *user.User
}

// CallbackContext contains context for a callback query.
type CallbackContext struct {
	TelegramID int64
	ChatID     int64
	MessageID  int64
	QueryID    string
	Data       string
	User       *user.User
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// CommandHandler handles a bot command.
type CommandHandler interface {
	Handle(ctx context.Context, req handler.Request) (*handler.Response, error)
}

// CallbackHandler handles callback queries with a given prefix.
type CallbackHandler interface {
	Handle(ctx context.Context, req callback.Request) (*callback.Response, error)
}

// Sender is the part of the Bot API the router needs.
type Sender interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

// Router dispatches commands and callbacks to handlers and delivers replies.
type Router struct {
	config RouterConfig
	logger *slog.Logger
	sender Sender
	menu   *handler.Menu

	mu        sync.RWMutex
	commands  map[string]CommandHandler
	callbacks map[string]CallbackHandler
}

// NewRouter creates a new router.
func NewRouter(sender Sender, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Router{
		config:    config,
		logger:    config.Logger.With(logger.Component("router")),
		sender:    sender,
		menu:      handler.NewMenu(),
		commands:  make(map[string]CommandHandler),
		callbacks: make(map[string]CallbackHandler),
	}
}

// RegisterCommand registers a handler for a command (without the slash).
func (r *Router) RegisterCommand(command string, h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands[command] = h

	if r.config.Debug {
		r.logger.Debug("registered command handler", slog.String("command", command))
	}
}

// RegisterCallbackPrefix registers a handler for callbacks starting with prefix.
func (r *Router) RegisterCallbackPrefix(prefix string, h CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks[prefix] = h

	if r.config.Debug {
		r.logger.Debug("registered callback prefix handler", slog.String("prefix", prefix))
	}
}

// HasCommand reports whether a handler is registered for command.
func (r *Router) HasCommand(command string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[command]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// HandleCommand routes a command to its handler and delivers the replies.
func (r *Router) HandleCommand(ctx context.Context, command string, cmdCtx CommandContext) error {
	r.mu.RLock()
	h, ok := r.commands[command]
	r.mu.RUnlock()

	if !ok {
		if r.config.Debug {
			r.logger.Debug("no handler for command", slog.String("command", command))
		}
		return r.deliver(ctx, cmdCtx, []handler.Reply{{Text: presenter.UnknownCommand}})
	}

	resp, err := h.Handle(ctx, handler.Request{
		TelegramID: cmdCtx.TelegramID,
		ChatID:     cmdCtx.ChatID,
		User:       cmdCtx.User,
		Args:       cmdCtx.Args,
		Progress: func(ctx context.Context, reply handler.Reply) {
			if err := r.deliver(ctx, cmdCtx, []handler.Reply{reply}); err != nil {
				r.logger.WarnContext(ctx, "failed to send progress message", logger.Err(err))
			}
		},
	})
	if err != nil {
		return err
	}

	return r.deliver(ctx, cmdCtx, resp.Replies)
}

// HandleText resolves free text through the menu and runs the matching command.
// It returns the command that ran, or "" when the text matched nothing.
func (r *Router) HandleText(ctx context.Context, text string, cmdCtx CommandContext) (string, error) {
	command, ok := r.menu.Match(text)
	if !ok || !r.HasCommand(command) {
		return "", r.deliver(ctx, cmdCtx, []handler.Reply{{Text: presenter.UnknownCommand}})
	}
	return command, r.HandleCommand(ctx, command, cmdCtx)
}

// HandleCallback routes a callback to the handler with the longest matching
// prefix, answers the query and applies the edit.
func (r *Router) HandleCallback(ctx context.Context, cbCtx CallbackContext) error {
	r.mu.RLock()
	var matchedPrefix string
	var matched CallbackHandler
	for prefix, h := range r.callbacks {
		if strings.HasPrefix(cbCtx.Data, prefix) && len(prefix) > len(matchedPrefix) {
			matchedPrefix = prefix
			matched = h
		}
	}
	r.mu.RUnlock()

	if matched == nil {
		if r.config.Debug {
			r.logger.Debug("no handler for callback", slog.String("data", cbCtx.Data))
		}
		return r.sender.AnswerCallbackQuery(ctx, cbCtx.QueryID, "", false)
	}

	resp, err := matched.Handle(ctx, callback.Request{
		TelegramID: cbCtx.TelegramID,
		ChatID:     cbCtx.ChatID,
		MessageID:  cbCtx.MessageID,
		Data:       cbCtx.Data,
		User:       cbCtx.User,
	})
	if err != nil {
		return err
	}

	if err := r.sender.AnswerCallbackQuery(ctx, cbCtx.QueryID, resp.Toast, resp.ShowAlert); err != nil {
		r.logger.WarnContext(ctx, "failed to answer callback", logger.Err(err))
	}

	if resp.Edit != nil && cbCtx.MessageID != 0 {
		err := r.sender.EditMessageText(ctx, cbCtx.ChatID, cbCtx.MessageID,
			resp.Edit.Text, resp.Edit.ParseMode, inlineMarkup(resp.Edit.Keyboard))
		if err != nil {
			return err
		}
	}

	if resp.FollowUp != "" {
		return r.deliver(ctx, CommandContext{ChatID: cbCtx.ChatID, User: cbCtx.User}, []handler.Reply{{
			Text:      resp.FollowUp,
			ParseMode: presenter.ParseModeHTML,
		}})
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

// deliver sends replies in order and stops at the first failure.
func (r *Router) deliver(ctx context.Context, cmdCtx CommandContext, replies []handler.Reply) error {
	for _, reply := range replies {
		params := telegram.SendMessageParams{
			ChatID:    cmdCtx.ChatID,
			Text:      reply.Text,
			ParseMode: reply.ParseMode,
		}
		switch {
		case reply.Keyboard != nil:
			params.ReplyMarkup = inlineMarkup(reply.Keyboard)
		case reply.Menu != nil:
			params.ReplyMarkup = replyMarkup(reply.Menu)
		}

		if _, err := r.sender.SendMessage(ctx, params); err != nil {
			return err
		}

		if cmdCtx.User != nil {
			r.config.ChatLog.Outbound(ctx, cmdCtx.User.ID, reply.Text)
		}
	}
	return nil
}

// SendReply delivers a single reply outside of command handling.
func (r *Router) SendReply(ctx context.Context, chatID int64, u *user.User, reply handler.Reply) error {
	return r.deliver(ctx, CommandContext{ChatID: chatID, User: u}, []handler.Reply{reply})
}

func inlineMarkup(kb *presenter.InlineKeyboard) *telegram.InlineKeyboardMarkup {
	if kb == nil {
		return nil
	}
	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: make([][]telegram.InlineKeyboardButton, 0, len(kb.Rows)),
	}
	for _, row := range kb.Rows {
		buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegram.InlineKeyboardButton{Text: b.Text, CallbackData: b.CallbackData})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}

func replyMarkup(kb *presenter.ReplyKeyboard) *telegram.ReplyKeyboardMarkup {
	markup := &telegram.ReplyKeyboardMarkup{
		Keyboard:              make([][]telegram.KeyboardButton, 0, len(kb.Rows)),
		ResizeKeyboard:        true,
		IsPersistent:          true,
		InputFieldPlaceholder: kb.Placeholder,
	}
	for _, row := range kb.Rows {
		buttons := make([]telegram.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, telegram.KeyboardButton{Text: label})
		}
		markup.Keyboard = append(markup.Keyboard, buttons)
	}
	return markup
}
