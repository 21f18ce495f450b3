package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ISSUE FOR ALL USERS COMMAND
// Scheduled broadcast. Every user is an independent failure domain: an error
// for one user is logged and counted, the batch always runs to the end.
// ══════════════════════════════════════════════════════════════════════════════

// QuestIssuer issues a quest to a single loaded user.
type QuestIssuer interface {
	IssueFor(ctx context.Context, u *user.User, t quest.Type) (*IssueQuestResult, error)
}

// Notifier delivers a freshly issued quest to the user.
type Notifier interface {
	NotifyQuestIssued(ctx context.Context, u *user.User, q *quest.Quest) error
}

// IssueForAllCommand starts a broadcast of one quest type.
type IssueForAllCommand struct {
	Type quest.Type
}

// BatchResult aggregates a broadcast run.
type BatchResult struct {
	RunID        string
	Type         quest.Type
	Total        int
	Issued       int
	Skipped      int
	Failed       int
	NotifyFailed int
	Duration     time.Duration
}

// String implements fmt.Stringer for log lines.
func (r BatchResult) String() string {
	return fmt.Sprintf("%s broadcast %s: total=%d issued=%d skipped=%d failed=%d notify_failed=%d in %s",
		r.Type, r.RunID, r.Total, r.Issued, r.Skipped, r.Failed, r.NotifyFailed, r.Duration.Round(time.Millisecond))
}

// IssueForAllConfig contains configuration for the handler.
type IssueForAllConfig struct {
	// Concurrency is the number of users processed in parallel.
	Concurrency int

	// PageSize is the user page size when iterating the store.
	PageSize int
}

// DefaultIssueForAllConfig returns default configuration.
func DefaultIssueForAllConfig() IssueForAllConfig {
	return IssueForAllConfig{
		Concurrency: 4,
		PageSize:    100,
	}
}

// IssueForAllHandler handles IssueForAllCommand.
type IssueForAllHandler struct {
	users    user.Repository
	issuer   QuestIssuer
	notifier Notifier
	config   IssueForAllConfig
	log      *slog.Logger
}

// NewIssueForAllHandler creates a new IssueForAllHandler. notifier may be nil.
func NewIssueForAllHandler(users user.Repository, issuer QuestIssuer, notifier Notifier, config IssueForAllConfig, log *slog.Logger) *IssueForAllHandler {
	def := DefaultIssueForAllConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.PageSize <= 0 {
		config.PageSize = def.PageSize
	}
	if log == nil {
		log = slog.Default()
	}

	return &IssueForAllHandler{
		users:    users,
		issuer:   issuer,
		notifier: notifier,
		config:   config,
		log:      log.With(logger.Component("issue_for_all")),
	}
}

// Handle runs the broadcast. An error is returned only when the user list
// itself cannot be read or the type is invalid.
func (h *IssueForAllHandler) Handle(ctx context.Context, cmd IssueForAllCommand) (*BatchResult, error) {
	if !cmd.Type.IsValid() {
		return nil, fmt.Errorf("issue_for_all: unknown quest type %q", cmd.Type)
	}

	start := time.Now()
	runID := uuid.NewString()
	log := h.log.With(slog.String("run_id", runID), logger.QuestType(string(cmd.Type)))

	var issued, skipped, failed, notifyFailed atomic.Int64
	total := 0

	g := new(errgroup.Group)
	g.SetLimit(h.config.Concurrency)

	opts := user.ListOptions{Limit: h.config.PageSize}
	var listErr error
	for {
		page, err := h.users.List(ctx, opts)
		if err != nil {
			listErr = fmt.Errorf("issue_for_all: list users (offset %d): %w", opts.Offset, err)
			break
		}

		for _, u := range page {
			total++
			g.Go(func() error {
				switch h.issueOne(ctx, log, u, cmd.Type) {
				case outcomeIssued:
					issued.Add(1)
				case outcomeIssuedNotifyFailed:
					issued.Add(1)
					notifyFailed.Add(1)
				case outcomeSkipped:
					skipped.Add(1)
				default:
					failed.Add(1)
				}
				return nil
			})
		}

		if len(page) < opts.Limit || ctx.Err() != nil {
			break
		}
		opts.Offset += len(page)
	}

	_ = g.Wait()

	result := &BatchResult{
		RunID:        runID,
		Type:         cmd.Type,
		Total:        total,
		Issued:       int(issued.Load()),
		Skipped:      int(skipped.Load()),
		Failed:       int(failed.Load()),
		NotifyFailed: int(notifyFailed.Load()),
		Duration:     time.Since(start),
	}

	log.Info("broadcast finished",
		slog.Int("total", result.Total),
		slog.Int("issued", result.Issued),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int("notify_failed", result.NotifyFailed),
		logger.Latency(result.Duration),
	)

	if listErr != nil && total == 0 {
		return result, listErr
	}
	if listErr != nil {
		log.Error("broadcast stopped early", logger.Err(listErr))
	}
	return result, nil
}

type issueOutcome int

const (
	outcomeFailed issueOutcome = iota
	outcomeIssued
	outcomeIssuedNotifyFailed
	outcomeSkipped
)

func (h *IssueForAllHandler) issueOne(ctx context.Context, log *slog.Logger, u *user.User, t quest.Type) issueOutcome {
	if ctx.Err() != nil {
		return outcomeFailed
	}

	res, err := h.issuer.IssueFor(ctx, u, t)
	if err != nil {
		log.Warn("quest issuance failed",
			logger.UserID(int64(u.ID)),
			logger.TelegramID(int64(u.TelegramID)),
			logger.Err(err),
		)
		return outcomeFailed
	}
	if !res.Issued {
		return outcomeSkipped
	}

	if h.notifier == nil {
		return outcomeIssued
	}
	if err := h.notifier.NotifyQuestIssued(ctx, u, res.Quest); err != nil {
		log.Warn("quest notification failed",
			logger.UserID(int64(u.ID)),
			logger.QuestID(int64(res.Quest.ID)),
			logger.Err(err),
		)
		return outcomeIssuedNotifyFailed
	}
	return outcomeIssued
}
