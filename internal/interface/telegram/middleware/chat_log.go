package middleware

import (
	"context"
	"log/slog"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHAT LOG MIDDLEWARE
// Records every inbound text and every bot reply. A failed write is logged
// and never interrupts the conversation.
// ══════════════════════════════════════════════════════════════════════════════

// MessageSaver persists a chat message.
type MessageSaver interface {
	Handle(ctx context.Context, cmd command.SaveChatMessageCommand) error
}

// ChatLog writes the conversation to the chat history.
type ChatLog struct {
	saver MessageSaver
	log   *slog.Logger
}

// NewChatLog creates a new chat log middleware.
func NewChatLog(saver MessageSaver, log *slog.Logger) *ChatLog {
	if log == nil {
		log = slog.Default()
	}
	return &ChatLog{saver: saver, log: log.With(logger.Component("chat_log"))}
}

// Inbound records text sent by the user.
func (c *ChatLog) Inbound(ctx context.Context, userID user.ID, text string) {
	c.save(ctx, userID, text, true)
}

// Outbound records a reply sent by the bot.
func (c *ChatLog) Outbound(ctx context.Context, userID user.ID, text string) {
	c.save(ctx, userID, text, false)
}

func (c *ChatLog) save(ctx context.Context, userID user.ID, text string, fromUser bool) {
	if c == nil || c.saver == nil || text == "" {
		return
	}
	err := c.saver.Handle(ctx, command.SaveChatMessageCommand{
		UserID:     userID,
		Text:       text,
		IsFromUser: fromUser,
	})
	if err != nil {
		c.log.WarnContext(ctx, "failed to save chat message",
			logger.UserID(int64(userID)),
			slog.Bool("from_user", fromUser),
			logger.Err(err),
		)
	}
}
