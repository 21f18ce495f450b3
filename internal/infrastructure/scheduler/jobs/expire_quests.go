package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/questforge/questbot/internal/application/command"
)

// StaleExpirer marks pending quests past their TTL as failed.
type StaleExpirer interface {
	ExpireStale(ctx context.Context, batchSize int) (*command.ExpireResult, error)
}

// ExpireQuestsJob fails stale pending quests. Registered only when
// auto-fail is enabled in configuration.
type ExpireQuestsJob struct {
	expirer   StaleExpirer
	batchSize int
	logger    *slog.Logger

	lastRun atomic.Pointer[command.ExpireResult]
}

// NewExpireQuestsJob creates the expiry job.
func NewExpireQuestsJob(expirer StaleExpirer, batchSize int, logger *slog.Logger) *ExpireQuestsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ExpireQuestsJob{
		expirer:   expirer,
		batchSize: batchSize,
		logger:    logger.With(slog.String("job", "expire_quests")),
	}
}

func (j *ExpireQuestsJob) Name() string { return "expire_quests" }

func (j *ExpireQuestsJob) Description() string {
	return "Marks pending quests past their TTL as failed"
}

// Run executes one sweep.
func (j *ExpireQuestsJob) Run(ctx context.Context) error {
	res, err := j.expirer.ExpireStale(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("expire quests: %w", err)
	}

	j.lastRun.Store(res)
	if res.Failed > 0 || res.Skipped > 0 || res.Errors > 0 {
		j.logger.Info("stale quests expired",
			slog.Int("checked", res.Checked),
			slog.Int("failed", res.Failed),
			slog.Int("skipped", res.Skipped),
			slog.Int("errors", res.Errors),
		)
	}
	return nil
}

// LastRunStats returns the result of the last successful sweep, or nil.
func (j *ExpireQuestsJob) LastRunStats() *command.ExpireResult {
	return j.lastRun.Load()
}
