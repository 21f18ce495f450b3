package sqlite

import (
	"context"
	"fmt"
	"slices"

	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/user"
)

// ChatRepository implements chat.Repository for SQLite.
type ChatRepository struct {
	db dbtx
}

// NewChatRepository creates a repository on the shared handle.
func NewChatRepository(d *DB) *ChatRepository {
	return &ChatRepository{db: d.db}
}

func (r *ChatRepository) Save(ctx context.Context, m *chat.Message) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, message, is_from_user, created_at)
		VALUES (?, ?, ?, ?)`,
		int64(m.UserID), m.Text, m.IsFromUser, formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save chat message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("save chat message: %w", err)
	}
	m.ID = id
	return nil
}

func (r *ChatRepository) ListRecent(ctx context.Context, userID user.ID, limit int) ([]*chat.Message, error) {
	if limit <= 0 {
		limit = chat.DefaultHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, message, is_from_user, created_at
		FROM chat_history WHERE user_id = ?
		ORDER BY id DESC LIMIT ?`,
		int64(userID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	defer rows.Close()

	out := make([]*chat.Message, 0, limit)
	for rows.Next() {
		var (
			m          chat.Message
			uid        int64
			createdRaw string
		)
		if err := rows.Scan(&m.ID, &uid, &m.Text, &m.IsFromUser, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdRaw); err != nil {
			return nil, fmt.Errorf("parse chat created_at: %w", err)
		}
		m.UserID = user.ID(uid)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(out)
	return out, nil
}
