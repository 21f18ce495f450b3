package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/pkg/circuitbreaker"
	"github.com/questforge/questbot/pkg/logger"
	"github.com/questforge/questbot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ISSUE QUEST COMMAND
// Gate check -> generator (with retry and breaker) -> validation -> persist.
// Retries wrap only the generator call, so one eligible request never
// persists more than one quest.
// ══════════════════════════════════════════════════════════════════════════════

// IssueQuestCommand requests a new generated quest for a user.
type IssueQuestCommand struct {
	UserID user.ID
	Type   quest.Type
}

// Validate validates the command.
func (c IssueQuestCommand) Validate() error {
	if c.UserID <= 0 {
		return shared.InvalidArgument("quest", "Issue", "user_id is required")
	}
	if !c.Type.IsValid() {
		return shared.InvalidArgument("quest", "Issue", fmt.Sprintf("unknown quest type %q", c.Type))
	}
	return nil
}

// IssueQuestResult contains the outcome of issuance.
type IssueQuestResult struct {
	// Issued is false when the eligibility gate denied the request.
	Issued bool

	// Quest is the created quest (nil when not issued).
	Quest *quest.Quest

	// Decision is the gate decision; Hours/Minutes are set on denial.
	Decision quest.Decision
}

// IssueQuestConfig contains configuration for the handler.
type IssueQuestConfig struct {
	// GenerateAttempts is the total number of generator calls per request.
	GenerateAttempts int

	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
}

// DefaultIssueQuestConfig returns default configuration.
func DefaultIssueQuestConfig() IssueQuestConfig {
	return IssueQuestConfig{
		GenerateAttempts: 2,
		RetryDelay:       500 * time.Millisecond,
	}
}

// IssueQuestHandler handles IssueQuestCommand.
type IssueQuestHandler struct {
	users     user.Repository
	quests    quest.Repository
	gate      *quest.Gate
	generator quest.Generator
	breaker   *circuitbreaker.CircuitBreaker
	retrier   *retry.Retrier
	log       *slog.Logger
	now       func() time.Time
}

// NewIssueQuestHandler creates a new IssueQuestHandler.
// breaker may be nil.
func NewIssueQuestHandler(
	users user.Repository,
	quests quest.Repository,
	gate *quest.Gate,
	generator quest.Generator,
	breaker *circuitbreaker.CircuitBreaker,
	config IssueQuestConfig,
	log *slog.Logger,
) *IssueQuestHandler {
	if config.GenerateAttempts <= 0 {
		config = DefaultIssueQuestConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	h := &IssueQuestHandler{
		users:     users,
		quests:    quests,
		gate:      gate,
		generator: generator,
		breaker:   breaker,
		log:       log.With(logger.Component("issue_quest")),
		now:       time.Now,
	}

	h.retrier = retry.New(
		retry.WithMaxAttempts(config.GenerateAttempts),
		retry.WithInitialDelay(config.RetryDelay),
		retry.WithRetryIf(isRetryableGeneration),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			h.log.Warn("quest generation failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)

	return h
}

// Handle loads the user and issues a quest.
func (h *IssueQuestHandler) Handle(ctx context.Context, cmd IssueQuestCommand) (*IssueQuestResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	u, err := h.users.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("issue_quest: load user: %w", err)
	}

	return h.IssueFor(ctx, u, cmd.Type)
}

// IssueFor issues a quest to an already loaded user.
func (h *IssueQuestHandler) IssueFor(ctx context.Context, u *user.User, t quest.Type) (*IssueQuestResult, error) {
	if !t.IsValid() {
		return nil, shared.InvalidArgument("quest", "Issue", fmt.Sprintf("unknown quest type %q", t))
	}

	latest, err := h.quests.LatestPending(ctx, u.ID, t)
	if err != nil {
		return nil, fmt.Errorf("issue_quest: latest pending: %w", err)
	}

	decision := h.gate.Decide(t, latest, h.now())
	if !decision.Allowed {
		return &IssueQuestResult{Decision: decision}, nil
	}

	generated, err := h.generate(ctx, quest.GenerateRequest{
		UserName: u.DisplayName(),
		Type:     t,
		Level:    u.Level,
	})
	if err != nil {
		return nil, err
	}

	q, err := h.Create(ctx, quest.NewQuestParams{
		UserID:      u.ID,
		Title:       generated.Title,
		Description: generated.Description,
		Tasks:       generated.Tasks,
		Difficulty:  generated.Difficulty,
		Type:        t,
	})
	if err != nil {
		if shared.IsInvalidArgument(err) {
			return nil, shared.Generation("Issue", "generated quest rejected", err)
		}
		return nil, err
	}

	h.log.Info("quest issued",
		logger.UserID(int64(u.ID)),
		logger.QuestID(int64(q.ID)),
		logger.QuestType(string(t)),
		slog.Int("tasks", len(q.Tasks)),
	)

	return &IssueQuestResult{Issued: true, Quest: q, Decision: decision}, nil
}

// Create persists a new pending quest without consulting the gate or the generator.
func (h *IssueQuestHandler) Create(ctx context.Context, p quest.NewQuestParams) (*quest.Quest, error) {
	q, err := quest.NewQuest(p, h.now())
	if err != nil {
		return nil, err
	}

	if err := h.quests.Create(ctx, q); err != nil {
		return nil, shared.Persistence("quest", "Create", err)
	}
	return q, nil
}

func (h *IssueQuestHandler) generate(ctx context.Context, req quest.GenerateRequest) (*quest.Generated, error) {
	generated, err := retry.Value(ctx, h.retrier, func(ctx context.Context) (*quest.Generated, error) {
		return h.generateOnce(ctx, req)
	})
	if err != nil {
		if shared.IsGeneration(err) {
			return nil, err
		}
		return nil, shared.Generation("Generate", "generator unavailable", err)
	}
	return generated, nil
}

func (h *IssueQuestHandler) generateOnce(ctx context.Context, req quest.GenerateRequest) (*quest.Generated, error) {
	var generated *quest.Generated

	call := func(ctx context.Context) error {
		g, err := h.generator.Generate(ctx, req)
		if err != nil {
			return err
		}
		if err := g.Validate(req.Type); err != nil {
			return err
		}
		generated = g
		return nil
	}

	var err error
	if h.breaker != nil {
		err = h.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	return generated, err
}

// isRetryableGeneration retries generator failures but never an open breaker
// or a cancelled context.
func isRetryableGeneration(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
