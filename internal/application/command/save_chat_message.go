package command

import (
	"context"
	"time"

	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// SaveChatMessageCommand appends one message to the chat log.
type SaveChatMessageCommand struct {
	UserID     user.ID
	Text       string
	IsFromUser bool
}

// SaveChatMessageHandler handles SaveChatMessageCommand.
type SaveChatMessageHandler struct {
	messages chat.Repository
	now      func() time.Time
}

// NewSaveChatMessageHandler creates a new SaveChatMessageHandler.
func NewSaveChatMessageHandler(messages chat.Repository) *SaveChatMessageHandler {
	return &SaveChatMessageHandler{messages: messages, now: time.Now}
}

// Handle stores the message.
func (h *SaveChatMessageHandler) Handle(ctx context.Context, cmd SaveChatMessageCommand) error {
	m, err := chat.NewMessage(cmd.UserID, cmd.Text, cmd.IsFromUser, h.now())
	if err != nil {
		return err
	}
	return shared.Persistence("chat", "Save", h.messages.Save(ctx, m))
}
