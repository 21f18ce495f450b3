// Package callback contains handlers for inline keyboard callbacks.
package callback

import (
	"context"
	"log/slog"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE TASK CALLBACK
// Handles "toggle_task:{questID}:{index}". The card is edited in place and
// the outcome is shown as a toast. A level-up gets its own message.
// ══════════════════════════════════════════════════════════════════════════════

// Toggler toggles a task and awards experience.
type Toggler interface {
	Handle(ctx context.Context, cmd command.ToggleTaskCommand) (*command.ToggleTaskResult, error)
}

// Request carries a parsed callback query.
type Request struct {
	TelegramID int64
	ChatID     int64
	MessageID  int64
	Data       string
	User       *user.User
}

// Edit replaces the text and keyboard of the message that holds the buttons.
type Edit struct {
	Text      string
	ParseMode string
	Keyboard  *presenter.InlineKeyboard
}

// Response is what a callback produces.
type Response struct {
	// Toast is shown in the callback answer.
	Toast string

	// ShowAlert turns the toast into a modal alert.
	ShowAlert bool

	// Edit, if set, updates the original message.
	Edit *Edit

	// FollowUp is sent as a new message after the edit.
	FollowUp string
}

// ToggleTaskHandler handles task toggle callbacks.
type ToggleTaskHandler struct {
	toggler Toggler
	log     *slog.Logger
}

// NewToggleTaskHandler creates a new ToggleTaskHandler.
func NewToggleTaskHandler(toggler Toggler, log *slog.Logger) *ToggleTaskHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ToggleTaskHandler{toggler: toggler, log: log.With(logger.Component("toggle_callback"))}
}

// Handle processes a toggle callback.
func (h *ToggleTaskHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	questID, idx, err := presenter.ParseToggleTaskData(req.Data)
	if err != nil {
		h.log.WarnContext(ctx, "malformed toggle callback",
			logger.TelegramID(req.TelegramID),
			slog.String("data", req.Data),
		)
		return &Response{Toast: presenter.QuestNotFound}, nil
	}

	res, err := h.toggler.Handle(ctx, command.ToggleTaskCommand{
		QuestID:   questID,
		TaskIndex: idx,
		UserID:    req.User.ID,
	})
	switch {
	case err == nil:
	case shared.IsNotFound(err), shared.IsInvalidArgument(err):
		return &Response{Toast: presenter.QuestNotFound, ShowAlert: true}, nil
	case shared.IsInvalidState(err):
		return &Response{Toast: presenter.QuestClosed, ShowAlert: true}, nil
	default:
		return nil, err
	}

	resp := &Response{Toast: presenter.ToggleToast(res)}
	if res.Blocked {
		return resp, nil
	}

	snap := res.Quest.Snapshot()
	resp.Edit = &Edit{
		Text:      presenter.QuestCard(snap),
		ParseMode: presenter.ParseModeHTML,
		Keyboard:  presenter.TaskKeyboard(snap),
	}
	if res.LeveledUp() {
		resp.FollowUp = presenter.LevelUp(res.LevelAfter)
	}
	return resp, nil
}
