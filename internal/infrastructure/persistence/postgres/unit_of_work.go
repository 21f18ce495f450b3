package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
)

// UnitOfWork implements quest.UnitOfWork over a single pgx transaction.
type UnitOfWork struct {
	conn *Connection
	opts pgx.TxOptions
}

// NewUnitOfWork creates a UnitOfWork on the connection pool.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// Do runs fn with repositories bound to one transaction.
// Any error from fn rolls back every write made through s and is returned as
// is; begin and commit failures are persistence errors.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s quest.Stores) error) error {
	var fnErr error
	err := u.conn.WithTx(ctx, u.opts, func(tx pgx.Tx) error {
		fnErr = fn(ctx, quest.Stores{
			Quests: NewQuestRepository(tx),
			Users:  NewUserRepository(tx),
		})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return shared.Persistence("store", "Tx", err)
	}
	return err
}
