package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/questforge/questbot/internal/application/query"
	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
)

// ProfileHandler handles the /profile command.
type ProfileHandler struct {
	profiles ProfileReader
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profiles ProfileReader) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Handle processes the /profile command.
func (h *ProfileHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	p, err := h.profiles.Handle(ctx, query.UserProfileQuery{UserID: req.User.ID})
	if err != nil {
		return nil, err
	}
	return html(presenter.Profile(p), nil), nil
}

// HistoryHandler handles the /history [n] command.
type HistoryHandler struct {
	history  HistoryReader
	location *time.Location
}

// defaultHistoryShown is how many messages /history prints without an argument.
const defaultHistoryShown = 10

// NewHistoryHandler creates a new HistoryHandler. Timestamps are rendered in loc.
func NewHistoryHandler(history HistoryReader, loc *time.Location) *HistoryHandler {
	return &HistoryHandler{history: history, location: loc}
}

// Handle processes the /history command.
func (h *HistoryHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	limit := defaultHistoryShown
	if arg := strings.TrimSpace(req.Args); arg != "" {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			limit = min(n, chat.DefaultHistoryLimit)
		}
	}

	msgs, err := h.history.Handle(ctx, query.ChatHistoryQuery{UserID: req.User.ID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return html(presenter.History(msgs, h.location), nil), nil
}

// AdminStatsHandler handles the /admin_stats command.
type AdminStatsHandler struct {
	stats StatsReader
}

// NewAdminStatsHandler creates a new AdminStatsHandler.
func NewAdminStatsHandler(stats StatsReader) *AdminStatsHandler {
	return &AdminStatsHandler{stats: stats}
}

// Handle processes the /admin_stats command.
func (h *AdminStatsHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	s, err := h.stats.Handle(ctx, query.AdminStatsQuery{RequesterID: user.TelegramID(req.TelegramID)})
	if err != nil {
		if shared.IsForbidden(err) {
			return single(presenter.AdminDenied), nil
		}
		return nil, err
	}
	return html(presenter.AdminStats(s), nil), nil
}
