// Package chat хранит журнал переписки пользователя с ботом.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// DefaultHistoryLimit - сколько последних сообщений показывать по умолчанию.
const DefaultHistoryLimit = 50

// Message - одна запись журнала. Журнал только дополняется.
type Message struct {
	ID         int64
	UserID     user.ID
	Text       string
	IsFromUser bool
	CreatedAt  time.Time
}

// NewMessage создаёт запись журнала.
func NewMessage(userID user.ID, text string, fromUser bool, now time.Time) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, shared.InvalidArgument("chat", "NewMessage", "message text is empty")
	}
	return &Message{
		UserID:     userID,
		Text:       text,
		IsFromUser: fromUser,
		CreatedAt:  now.UTC(),
	}, nil
}

// Repository - хранилище журнала переписки.
type Repository interface {
	// Save добавляет сообщение в журнал.
	Save(ctx context.Context, m *Message) error

	// ListRecent возвращает последние limit сообщений, старые первыми.
	ListRecent(ctx context.Context, userID user.ID, limit int) ([]*Message, error)
}
