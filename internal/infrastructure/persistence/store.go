// Package persistence opens the configured quest store.
package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/questforge/questbot/config"
	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/internal/infrastructure/persistence/postgres"
	"github.com/questforge/questbot/internal/infrastructure/persistence/sqlite"
)

// Store bundles the repositories of one backend.
type Store struct {
	Driver   string
	Users    user.Repository
	Quests   quest.Repository
	Messages chat.Repository
	UoW      quest.UnitOfWork

	ping  func(ctx context.Context) error
	close func() error
}

// Ping checks the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.close()
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, log)
	case config.DriverSQLite:
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*Store, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.URL
	pgCfg.MaxConns = int32(cfg.MaxConns)
	pgCfg.MinConns = int32(cfg.MinConns)
	pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime.Std()
	pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime.Std()
	pgCfg.ConnectAttempts = cfg.ConnectAttempts

	conn, err := postgres.Connect(ctx, pgCfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	migrator := postgres.NewMigrator(conn)
	if err := migrator.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	if status, err := migrator.Status(ctx); err != nil {
		log.Warn("failed to get migration status", slog.String("error", err.Error()))
	} else {
		applied := 0
		for _, m := range status {
			if m.IsApplied {
				applied++
			}
		}
		log.Info("migrations completed", slog.Int("applied", applied), slog.Int("total", len(status)))
	}

	return &Store{
		Driver:   config.DriverPostgres,
		Users:    postgres.NewUserRepository(conn),
		Quests:   postgres.NewQuestRepository(conn),
		Messages: postgres.NewChatRepository(conn),
		UoW:      postgres.NewUnitOfWork(conn),
		ping:     conn.Ping,
		close: func() error {
			conn.Close()
			return nil
		},
	}, nil
}

func openSQLite(cfg config.DatabaseConfig, log *slog.Logger) (*Store, error) {
	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	log.Info("sqlite database opened", slog.String("path", cfg.SQLitePath))

	return &Store{
		Driver:   config.DriverSQLite,
		Users:    sqlite.NewUserRepository(db),
		Quests:   sqlite.NewQuestRepository(db),
		Messages: sqlite.NewChatRepository(db),
		UoW:      sqlite.NewUnitOfWork(db),
		ping:     db.Ping,
		close:    db.Close,
	}, nil
}
