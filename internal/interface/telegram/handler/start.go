package handler

import (
	"context"

	"github.com/questforge/questbot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// START / HELP
// /start greets the user and installs the main menu. Registration already
// happened in the auth middleware.
// ══════════════════════════════════════════════════════════════════════════════

// StartHandler handles the /start command.
type StartHandler struct{}

// NewStartHandler creates a new StartHandler.
func NewStartHandler() *StartHandler {
	return &StartHandler{}
}

// Handle processes the /start command.
func (h *StartHandler) Handle(_ context.Context, req Request) (*Response, error) {
	name := ""
	if req.User != nil {
		name = req.User.FirstName
	}
	return &Response{Replies: []Reply{{
		Text:      presenter.Start(name),
		ParseMode: presenter.ParseModeHTML,
		Menu:      presenter.MainMenu(),
	}}}, nil
}

// HelpHandler handles the /help command.
type HelpHandler struct {
	dailyAt  string
	weeklyAt string
}

// NewHelpHandler creates a new HelpHandler. The schedule descriptions are
// shown in the automation block; empty strings hide it.
func NewHelpHandler(dailyAt, weeklyAt string) *HelpHandler {
	return &HelpHandler{dailyAt: dailyAt, weeklyAt: weeklyAt}
}

// Handle processes the /help command.
func (h *HelpHandler) Handle(_ context.Context, _ Request) (*Response, error) {
	return single(presenter.Help(h.dailyAt, h.weeklyAt)), nil
}
