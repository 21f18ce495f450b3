package handler

import (
	"context"
	"log/slog"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/application/query"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MY QUESTS
// One card per pending quest, each with its own task keyboard.
// ══════════════════════════════════════════════════════════════════════════════

// MyQuestsHandler handles the /my_quests command.
type MyQuestsHandler struct {
	quests QuestLister
}

// NewMyQuestsHandler creates a new MyQuestsHandler.
func NewMyQuestsHandler(quests QuestLister) *MyQuestsHandler {
	return &MyQuestsHandler{quests: quests}
}

// Handle processes the /my_quests command.
func (h *MyQuestsHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	res, err := h.quests.Handle(ctx, query.ListQuestsQuery{
		UserID: req.User.ID,
		Status: query.Pending(),
	})
	if err != nil {
		return nil, err
	}

	if len(res.Quests) == 0 {
		return single(presenter.NoActiveQuests), nil
	}

	resp := &Response{Replies: make([]Reply, 0, len(res.Quests)+1)}
	resp.Replies = append(resp.Replies, Reply{
		Text:      presenter.QuestListHeader(len(res.Quests)),
		ParseMode: presenter.ParseModeHTML,
	})
	for _, q := range res.Quests {
		resp.Replies = append(resp.Replies, Reply{
			Text:      presenter.QuestCard(q),
			ParseMode: presenter.ParseModeHTML,
			Keyboard:  presenter.TaskKeyboard(q),
		})
	}
	return resp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE QUEST
// /generate_daily and /generate_weekly. The gate is checked before the
// "generating" notice so a denied user gets one message, not two.
// ══════════════════════════════════════════════════════════════════════════════

// GenerateHandler handles /generate_daily and /generate_weekly.
type GenerateHandler struct {
	questType quest.Type
	gate      GateChecker
	issuer    QuestIssuer
	log       *slog.Logger
}

// NewGenerateHandler creates a handler for one quest type.
func NewGenerateHandler(t quest.Type, gate GateChecker, issuer QuestIssuer, log *slog.Logger) *GenerateHandler {
	if log == nil {
		log = slog.Default()
	}
	return &GenerateHandler{
		questType: t,
		gate:      gate,
		issuer:    issuer,
		log:       log.With(logger.Component("generate_handler"), logger.QuestType(string(t))),
	}
}

// Handle processes the generate command.
func (h *GenerateHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	decision, err := h.gate.Handle(ctx, query.CanIssueQuestQuery{UserID: req.User.ID, Type: h.questType})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return single(presenter.GateDenied(decision)), nil
	}

	req.progress(ctx, Reply{Text: presenter.Generating(h.questType)})

	res, err := h.issuer.Handle(ctx, command.IssueQuestCommand{UserID: req.User.ID, Type: h.questType})
	if err != nil {
		if shared.IsGeneration(err) {
			h.log.WarnContext(ctx, "quest generation failed",
				logger.UserID(int64(req.User.ID)),
				logger.Err(err),
			)
			return single(presenter.GenerationFailed), nil
		}
		return nil, err
	}

	// Another request may have issued a quest between the check and the call.
	if !res.Issued {
		return single(presenter.GateDenied(res.Decision)), nil
	}

	snap := res.Quest.Snapshot()
	return html(presenter.NewQuestCard(snap), presenter.TaskKeyboard(snap)), nil
}
