package query

import (
	"context"
	"time"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// CAN ISSUE QUEST QUERY
// Проверка права на новый квест без его генерации.
// ══════════════════════════════════════════════════════════════════════════════

// CanIssueQuestQuery - пользователь и тип квеста.
type CanIssueQuestQuery struct {
	UserID user.ID
	Type   quest.Type
}

// CanIssueQuestHandler обрабатывает CanIssueQuestQuery.
type CanIssueQuestHandler struct {
	quests quest.Repository
	gate   *quest.Gate
	now    func() time.Time
}

// NewCanIssueQuestHandler создаёт обработчик.
func NewCanIssueQuestHandler(quests quest.Repository, gate *quest.Gate) *CanIssueQuestHandler {
	return &CanIssueQuestHandler{quests: quests, gate: gate, now: time.Now}
}

// Handle возвращает решение гейта.
func (h *CanIssueQuestHandler) Handle(ctx context.Context, q CanIssueQuestQuery) (quest.Decision, error) {
	if !q.Type.IsValid() {
		return quest.Decision{}, shared.InvalidArgument("quest", "CanIssue", "unknown quest type")
	}

	latest, err := h.quests.LatestPending(ctx, q.UserID, q.Type)
	if err != nil {
		return quest.Decision{}, shared.Persistence("quest", "CanIssue", err)
	}
	return h.gate.Decide(q.Type, latest, h.now()), nil
}
