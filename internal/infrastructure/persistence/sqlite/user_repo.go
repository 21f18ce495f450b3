package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// UserRepository implements user.Repository for SQLite.
type UserRepository struct {
	db dbtx
}

// NewUserRepository creates a repository on the shared handle.
func NewUserRepository(d *DB) *UserRepository {
	return &UserRepository{db: d.db}
}

const userColumns = `id, telegram_id, username, first_name, level, experience, created_at`

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, level, experience, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		int64(u.TelegramID), u.Username, u.FirstName, u.Level, u.Experience, formatTime(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	u.ID = user.ID(id)
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id user.ID) (*user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, int64(id))
	return scanUser(row)
}

func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID user.TelegramID) (*user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, int64(telegramID))
	return scanUser(row)
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET username = ?, first_name = ?, level = ?, experience = ?
		WHERE id = ?`,
		u.Username, u.FirstName, u.Level, u.Experience, int64(u.ID),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return checkRowsAffected(res, shared.ErrUserNotFound)
}

func (r *UserRepository) List(ctx context.Context, opts user.ListOptions) ([]*user.User, error) {
	if opts.Limit <= 0 {
		opts = user.DefaultListOptions()
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]*user.User, 0, opts.Limit)
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *UserRepository) AverageLevel(ctx context.Context) (float64, error) {
	var avg float64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(AVG(level), 0.0) FROM users`).Scan(&avg); err != nil {
		return 0, fmt.Errorf("average level: %w", err)
	}
	return avg, nil
}

func scanUser(row scanner) (*user.User, error) {
	var (
		u          user.User
		id, tgID   int64
		createdRaw string
	)
	if err := row.Scan(&id, &tgID, &u.Username, &u.FirstName, &u.Level, &u.Experience, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	created, err := parseTime(createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse user created_at: %w", err)
	}

	u.ID = user.ID(id)
	u.TelegramID = user.TelegramID(tgID)
	u.CreatedAt = created
	return &u, nil
}

func checkRowsAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
