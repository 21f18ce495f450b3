// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST QUESTS QUERY
// Квесты пользователя, новые первыми. Используется командой /my_quests.
// ══════════════════════════════════════════════════════════════════════════════

// ListQuestsQuery содержит параметры выборки.
type ListQuestsQuery struct {
	UserID user.ID

	// Status - фильтр по статусу (nil - все).
	Status *quest.Status

	// Type - фильтр по типу (nil - все).
	Type *quest.Type

	// Limit - максимум записей (0 - без ограничения).
	Limit int
}

// Validate проверяет параметры запроса.
func (q ListQuestsQuery) Validate() error {
	if q.UserID <= 0 {
		return shared.InvalidArgument("quest", "List", "user_id is required")
	}
	if q.Status != nil && !q.Status.IsValid() {
		return shared.InvalidArgument("quest", "List", "unknown status filter")
	}
	if q.Limit < 0 {
		return shared.InvalidArgument("quest", "List", "limit cannot be negative")
	}
	return nil
}

// ListQuestsResult - найденные квесты в виде снимков.
type ListQuestsResult struct {
	Quests []quest.Snapshot
}

// ListQuestsHandler обрабатывает ListQuestsQuery.
type ListQuestsHandler struct {
	quests quest.Repository
}

// NewListQuestsHandler создаёт обработчик.
func NewListQuestsHandler(quests quest.Repository) *ListQuestsHandler {
	return &ListQuestsHandler{quests: quests}
}

// Handle выполняет запрос.
func (h *ListQuestsHandler) Handle(ctx context.Context, q ListQuestsQuery) (*ListQuestsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	found, err := h.quests.ListByUser(ctx, q.UserID, quest.ListFilter{
		Status: q.Status,
		Type:   q.Type,
		Limit:  q.Limit,
	})
	if err != nil {
		return nil, shared.Persistence("quest", "List", err)
	}

	result := &ListQuestsResult{Quests: make([]quest.Snapshot, 0, len(found))}
	for _, item := range found {
		result.Quests = append(result.Quests, item.Snapshot())
	}
	return result, nil
}

// Pending возвращает указатель на статус pending для фильтра.
func Pending() *quest.Status {
	s := quest.StatusPending
	return &s
}
