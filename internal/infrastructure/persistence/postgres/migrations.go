package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// migrationLockID keys the advisory lock that serialises concurrent
// migrators (the bot and the worker start together).
const migrationLockID = 0x71756573 // "ques"

// Migration is one embedded schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrate applies every pending migration in one transaction under an
// advisory lock, so either all of them land or none do.
func (m *Migrator) Migrate(ctx context.Context) error {
	return m.conn.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, createMigrationsTable); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		applied, err := appliedMigrations(ctx, tx)
		if err != nil {
			return err
		}

		for _, mig := range m.migrations {
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				mig.Version, mig.Name,
			); err != nil {
				return fmt.Errorf("record migration %d: %w", mig.Version, err)
			}
		}
		return nil
	})
}

// Status lists the embedded migrations with their applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if _, err := m.conn.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedMigrations(ctx, m.conn)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

func appliedMigrations(ctx context.Context, q Querier) (map[int]time.Time, error) {
	rows, err := q.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// GetMigrations returns all embedded migrations in apply order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_users",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_quests",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_chat_history",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
	id          BIGSERIAL PRIMARY KEY,
	telegram_id BIGINT NOT NULL UNIQUE,
	username    TEXT NOT NULL DEFAULT '',
	first_name  TEXT NOT NULL DEFAULT '',
	level       INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
	experience  INTEGER NOT NULL DEFAULT 0 CHECK (experience >= 0),
	created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration001Down = `
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: QUESTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS quests (
	id              BIGSERIAL PRIMARY KEY,
	user_id         BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	quest_type      TEXT NOT NULL CHECK (quest_type IN ('daily', 'weekly')),
	difficulty      TEXT NOT NULL CHECK (difficulty IN ('easy', 'medium', 'hard')),
	tasks           JSONB NOT NULL,
	completed_tasks JSONB NOT NULL DEFAULT '[]'::jsonb,
	status          TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed', 'failed')),
	created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	completed_at    TIMESTAMP WITH TIME ZONE,

	CONSTRAINT quests_tasks_not_empty CHECK (jsonb_array_length(tasks) > 0)
);

CREATE INDEX IF NOT EXISTS idx_quests_gate
	ON quests (user_id, quest_type, status, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_quests_pending_created
	ON quests (quest_type, created_at)
	WHERE status = 'pending';
`

const migration002Down = `
DROP TABLE IF EXISTS quests;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CHAT HISTORY
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS chat_history (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message      TEXT NOT NULL,
	is_from_user BOOLEAN NOT NULL,
	created_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_chat_history_user
	ON chat_history (user_id, id DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS chat_history;
`
