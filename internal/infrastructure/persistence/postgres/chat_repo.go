package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/user"
)

// ChatRepository implements chat.Repository for PostgreSQL.
type ChatRepository struct {
	db Querier
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db Querier) *ChatRepository {
	return &ChatRepository{db: db}
}

// Save appends a message to the chat log.
func (r *ChatRepository) Save(ctx context.Context, m *chat.Message) error {
	query := `
		INSERT INTO chat_history (user_id, message, is_from_user, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	if err := r.db.QueryRow(ctx, query, int64(m.UserID), m.Text, m.IsFromUser, m.CreatedAt).Scan(&m.ID); err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

// ListRecent returns the newest limit messages, oldest first.
func (r *ChatRepository) ListRecent(ctx context.Context, userID user.ID, limit int) ([]*chat.Message, error) {
	if limit <= 0 {
		limit = chat.DefaultHistoryLimit
	}

	query := `
		SELECT id, user_id, message, is_from_user, created_at
		FROM chat_history
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, int64(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	msgs := make([]*chat.Message, 0, limit)
	for rows.Next() {
		var (
			m   chat.Message
			uid int64
		)
		if err := rows.Scan(&m.ID, &uid, &m.Text, &m.IsFromUser, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.UserID = user.ID(uid)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(msgs)
	return msgs, nil
}
