package sqlite

import (
	"context"
	"errors"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
)

// UnitOfWork implements quest.UnitOfWork over a *sql.Tx.
type UnitOfWork struct {
	d *DB
}

// NewUnitOfWork creates a UnitOfWork on the shared handle.
func NewUnitOfWork(d *DB) *UnitOfWork {
	return &UnitOfWork{d: d}
}

// Do runs fn with repositories bound to one transaction and commits on success.
// Errors from fn are returned as is; transaction failures are persistence errors.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s quest.Stores) error) error {
	tx, err := u.d.db.BeginTx(ctx, nil)
	if err != nil {
		return shared.Persistence("store", "Begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	stores := quest.Stores{
		Quests: &QuestRepository{db: tx},
		Users:  &UserRepository{db: tx},
	}
	if err := fn(ctx, stores); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, shared.Persistence("store", "Rollback", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return shared.Persistence("store", "Commit", err)
	}
	return nil
}
