package quest

import (
	"context"
	"time"

	"github.com/questforge/questbot/internal/domain/user"
)

// ListFilter - параметры выборки квестов пользователя.
type ListFilter struct {
	Status *Status // nil - любой статус
	Type   *Type   // nil - любой тип
	Limit  int     // 0 - без ограничения
}

// StatusCounts - количество квестов по статусам.
type StatusCounts map[Status]int

// Repository определяет интерфейс хранилища квестов.
// Реализации: PostgreSQL, SQLite.
type Repository interface {
	// Create сохраняет новый квест и проставляет ему ID.
	Create(ctx context.Context, q *Quest) error

	// GetByID возвращает квест по ID.
	// Возвращает shared.ErrQuestNotFound, если квест не найден.
	GetByID(ctx context.Context, id ID) (*Quest, error)

	// ListByUser возвращает квесты пользователя, новые первыми.
	ListByUser(ctx context.Context, userID user.ID, filter ListFilter) ([]*Quest, error)

	// LatestPending возвращает самый свежий pending-квест данного типа.
	// Возвращает (nil, nil), если такого нет.
	LatestPending(ctx context.Context, userID user.ID, t Type) (*Quest, error)

	// ListPendingCreatedUntil возвращает pending-квесты типа, созданные не позже момента.
	// Граница включительная, как и в Gate.
	ListPendingCreatedUntil(ctx context.Context, t Type, until time.Time, limit int) ([]*Quest, error)

	// Update сохраняет изменённый набор заданий и статус.
	Update(ctx context.Context, q *Quest) error

	// FailIfPending переводит квест в failed, только если он всё ещё pending.
	// false означает, что квест успели завершить (или его нет): запись не тронута.
	FailIfPending(ctx context.Context, id ID) (bool, error)

	// CountByStatus возвращает количество квестов по статусам.
	CountByStatus(ctx context.Context) (StatusCounts, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Stores - репозитории, работающие в одной транзакции.
type Stores struct {
	Quests Repository
	Users  user.Repository
}

// UnitOfWork выполняет fn атомарно: либо все изменения сохраняются, либо ни одно.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
