// Package jobs contains the scheduled jobs of the quest bot.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/domain/quest"
)

// ══════════════════════════════════════════════════════════════════════════════
// ISSUE QUESTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// BatchIssuer issues quests of one type to every registered user.
type BatchIssuer interface {
	Handle(ctx context.Context, cmd command.IssueForAllCommand) (*command.BatchResult, error)
}

// IssueQuestsJob broadcasts a fresh quest of one type to all users.
// Users who still have a fresh pending quest of that type are skipped.
type IssueQuestsJob struct {
	issuer BatchIssuer
	qType  quest.Type
	logger *slog.Logger

	lastRun atomic.Pointer[command.BatchResult]
}

// NewIssueQuestsJob creates the broadcast job for qType.
func NewIssueQuestsJob(issuer BatchIssuer, qType quest.Type, logger *slog.Logger) *IssueQuestsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IssueQuestsJob{
		issuer: issuer,
		qType:  qType,
		logger: logger.With(slog.String("job", "issue_"+string(qType)+"_quests")),
	}
}

// Name returns the job name, e.g. "issue_daily_quests".
func (j *IssueQuestsJob) Name() string {
	return "issue_" + string(j.qType) + "_quests"
}

// Description returns a human-readable description.
func (j *IssueQuestsJob) Description() string {
	return fmt.Sprintf("Issues a new %s quest to every user", j.qType)
}

// Run executes the broadcast.
func (j *IssueQuestsJob) Run(ctx context.Context) error {
	res, err := j.issuer.Handle(ctx, command.IssueForAllCommand{Type: j.qType})
	if err != nil {
		return fmt.Errorf("issue %s quests: %w", j.qType, err)
	}

	j.lastRun.Store(res)
	j.logger.Info("broadcast finished",
		slog.String("run_id", res.RunID),
		slog.Int("total", res.Total),
		slog.Int("issued", res.Issued),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Int("notify_failed", res.NotifyFailed),
	)
	return nil
}

// LastRunStats returns the result of the last successful run, or nil.
func (j *IssueQuestsJob) LastRunStats() *command.BatchResult {
	return j.lastRun.Load()
}
