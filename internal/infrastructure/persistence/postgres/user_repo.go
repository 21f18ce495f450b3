package postgres

import (
	"context"
	"fmt"

	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository.
// db is either a *Connection or a pgx.Tx.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, telegram_id, username, first_name, level, experience, created_at`

// scanner is implemented by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new user and sets its ID.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (telegram_id, username, first_name, level, experience, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRow(ctx, query,
		int64(u.TelegramID),
		u.Username,
		u.FirstName,
		u.Level,
		u.Experience,
		u.CreatedAt,
	).Scan(&id)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	u.ID = user.ID(id)
	return nil
}

// GetByID retrieves a user by internal ID.
func (r *UserRepository) GetByID(ctx context.Context, id user.ID) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, int64(id)))
}

// GetByTelegramID retrieves a user by Telegram ID.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID user.TelegramID) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, int64(telegramID)))
}

// Update saves profile fields, experience and level.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users
		SET username = $2, first_name = $3, level = $4, experience = $5
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, int64(u.ID), u.Username, u.FirstName, u.Level, u.Experience)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// List returns users ordered by ID.
func (r *UserRepository) List(ctx context.Context, opts user.ListOptions) ([]*user.User, error) {
	if opts.Limit <= 0 {
		opts = user.DefaultListOptions()
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*user.User, 0, opts.Limit)
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// AverageLevel returns the mean level, 0 when there are no users.
func (r *UserRepository) AverageLevel(ctx context.Context) (float64, error) {
	var avg float64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(AVG(level), 0)::float8 FROM users`).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to compute average level: %w", err)
	}
	return avg, nil
}

func (r *UserRepository) scanUser(row scanner) (*user.User, error) {
	var (
		u          user.User
		id         int64
		telegramID int64
	)

	err := row.Scan(&id, &telegramID, &u.Username, &u.FirstName, &u.Level, &u.Experience, &u.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.ID = user.ID(id)
	u.TelegramID = user.TelegramID(telegramID)
	return &u, nil
}
