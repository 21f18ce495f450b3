package query

import (
	"context"

	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ChatHistoryQuery - последние сообщения пользователя.
type ChatHistoryQuery struct {
	UserID user.ID
	Limit  int // 0 - chat.DefaultHistoryLimit
}

// ChatHistoryHandler обрабатывает ChatHistoryQuery.
type ChatHistoryHandler struct {
	messages chat.Repository
}

// NewChatHistoryHandler создаёт обработчик.
func NewChatHistoryHandler(messages chat.Repository) *ChatHistoryHandler {
	return &ChatHistoryHandler{messages: messages}
}

// Handle возвращает последние сообщения, старые первыми.
func (h *ChatHistoryHandler) Handle(ctx context.Context, q ChatHistoryQuery) ([]*chat.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = chat.DefaultHistoryLimit
	}

	msgs, err := h.messages.ListRecent(ctx, q.UserID, limit)
	if err != nil {
		return nil, shared.Persistence("chat", "ListRecent", err)
	}
	return msgs, nil
}
