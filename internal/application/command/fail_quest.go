package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAIL QUEST COMMAND
// pending -> failed. Only the optional expiry sweep calls it; by default an
// expired quest stays pending and completable.
// ══════════════════════════════════════════════════════════════════════════════

// FailQuestCommand identifies the quest to fail.
type FailQuestCommand struct {
	QuestID quest.ID
}

// FailQuestHandler handles FailQuestCommand and the expiry sweep.
type FailQuestHandler struct {
	quests quest.Repository
	gate   *quest.Gate
	log    *slog.Logger
	now    func() time.Time
}

// NewFailQuestHandler creates a new FailQuestHandler.
func NewFailQuestHandler(quests quest.Repository, gate *quest.Gate, log *slog.Logger) *FailQuestHandler {
	if log == nil {
		log = slog.Default()
	}
	return &FailQuestHandler{
		quests: quests,
		gate:   gate,
		log:    log.With(logger.Component("fail_quest")),
		now:    time.Now,
	}
}

// Handle marks a pending quest as failed. The write is conditional: a quest
// completed after it was read is left as is.
func (h *FailQuestHandler) Handle(ctx context.Context, cmd FailQuestCommand) (*quest.Quest, error) {
	q, err := h.quests.GetByID(ctx, cmd.QuestID)
	if err != nil {
		return nil, shared.Persistence("quest", "Fail", err)
	}
	if err := q.Fail(); err != nil {
		return nil, err
	}
	ok, err := h.quests.FailIfPending(ctx, q.ID)
	if err != nil {
		return nil, shared.Persistence("quest", "Fail", err)
	}
	if !ok {
		return nil, errQuestLeftPending
	}
	return q, nil
}

var errQuestLeftPending = shared.NewDomainError("quest", "Fail", shared.ErrInvalidState,
	"quest is no longer pending")

// ExpireResult aggregates an expiry sweep. Skipped counts quests that left
// the pending state between the read and the write.
type ExpireResult struct {
	Checked int
	Failed  int
	Skipped int
	Errors  int
}

// ExpireStale fails every pending quest whose TTL has passed. The cutoff is
// inclusive, matching Gate.IsExpired.
func (h *FailQuestHandler) ExpireStale(ctx context.Context, batchSize int) (*ExpireResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	now := h.now()
	res := &ExpireResult{}

	for _, t := range []quest.Type{quest.TypeDaily, quest.TypeWeekly} {
		cutoff := now.Add(-h.gate.Policy().TTL(t))
		stale, err := h.quests.ListPendingCreatedUntil(ctx, t, cutoff, batchSize)
		if err != nil {
			return res, fmt.Errorf("expire_quests: list %s: %w", t, err)
		}

		for _, q := range stale {
			res.Checked++
			ok, err := h.quests.FailIfPending(ctx, q.ID)
			switch {
			case err != nil:
				res.Errors++
				h.log.Warn("failed to expire quest", logger.QuestID(int64(q.ID)), logger.Err(err))
			case !ok:
				res.Skipped++
			default:
				res.Failed++
			}
		}
	}
	return res, nil
}
