package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/questforge/questbot/internal/domain/leveling"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE TASK COMMAND
// Marks/unmarks a quest task. Quest mutation and experience award are
// committed in one unit of work. Un-marking never takes experience back.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleTaskCommand identifies the task to toggle.
type ToggleTaskCommand struct {
	QuestID   quest.ID
	TaskIndex int

	// UserID is the caller; a quest owned by someone else is reported as not found.
	// Zero skips the ownership check (internal callers).
	UserID user.ID
}

// ToggleTaskResult contains the outcome of a toggle.
type ToggleTaskResult struct {
	// Blocked is true when un-marking was refused by policy; nothing was stored.
	Blocked bool

	Quest   *quest.Quest
	Outcome quest.ToggleOutcome

	ExpAwarded  int
	LevelBefore int
	LevelAfter  int
	Experience  int
}

// LeveledUp reports whether the toggle raised the user's level.
func (r *ToggleTaskResult) LeveledUp() bool {
	return r.LevelAfter > r.LevelBefore
}

// ToggleTaskConfig contains configuration for the handler.
type ToggleTaskConfig struct {
	// AllowUncompletingFinishedTask permits removing a completion mark.
	AllowUncompletingFinishedTask bool
}

// ToggleTaskHandler handles ToggleTaskCommand.
type ToggleTaskHandler struct {
	uow    quest.UnitOfWork
	levels *leveling.Calculator
	config ToggleTaskConfig
	log    *slog.Logger
	now    func() time.Time
}

// NewToggleTaskHandler creates a new ToggleTaskHandler.
func NewToggleTaskHandler(uow quest.UnitOfWork, levels *leveling.Calculator, config ToggleTaskConfig, log *slog.Logger) *ToggleTaskHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ToggleTaskHandler{
		uow:    uow,
		levels: levels,
		config: config,
		log:    log.With(logger.Component("toggle_task")),
		now:    time.Now,
	}
}

// Handle executes the toggle.
func (h *ToggleTaskHandler) Handle(ctx context.Context, cmd ToggleTaskCommand) (*ToggleTaskResult, error) {
	var result *ToggleTaskResult

	err := h.uow.Do(ctx, func(ctx context.Context, s quest.Stores) error {
		q, err := s.Quests.GetByID(ctx, cmd.QuestID)
		if err != nil {
			return shared.Persistence("quest", "ToggleTask", err)
		}
		if cmd.UserID != 0 && q.UserID != cmd.UserID {
			return shared.ErrQuestNotFound
		}

		if !h.config.AllowUncompletingFinishedTask && q.IsTaskCompleted(cmd.TaskIndex) {
			result = &ToggleTaskResult{Blocked: true, Quest: q}
			return nil
		}

		outcome, err := q.ToggleTask(cmd.TaskIndex, h.now())
		if err != nil {
			return err
		}
		if err := s.Quests.Update(ctx, q); err != nil {
			return shared.Persistence("quest", "Update", err)
		}

		result = &ToggleTaskResult{Quest: q, Outcome: outcome}
		if !outcome.Completed {
			return nil
		}

		u, err := s.Users.GetByID(ctx, q.UserID)
		if err != nil {
			return shared.Persistence("user", "GetByID", err)
		}

		exp := h.levels.ExpForTaskCompletion(q.Type, outcome.CompletedBefore, outcome.TotalTasks)
		change, err := u.AddExperience(exp, h.levels)
		if err != nil {
			return err
		}
		if err := s.Users.Update(ctx, u); err != nil {
			return shared.Persistence("user", "Update", err)
		}

		result.ExpAwarded = change.Gained()
		result.LevelBefore = change.LevelBefore
		result.LevelAfter = change.LevelAfter
		result.Experience = change.ExpAfter
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.ExpAwarded > 0 {
		h.log.Info("task completed",
			logger.QuestID(int64(cmd.QuestID)),
			slog.Int("task_index", cmd.TaskIndex),
			logger.ExpAmount(result.ExpAwarded),
			slog.Bool("quest_completed", result.Outcome.QuestCompleted()),
			slog.Bool("level_up", result.LeveledUp()),
		)
	}

	return result, nil
}
