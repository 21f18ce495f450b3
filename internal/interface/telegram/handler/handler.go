// Package handler contains Telegram command handlers.
// Handlers never talk to the Bot API directly: they return replies and the
// router delivers them. That keeps them testable with plain fakes.
package handler

import (
	"context"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/application/query"
	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE
// ══════════════════════════════════════════════════════════════════════════════

// Request carries a parsed command.
type Request struct {
	// TelegramID is the sender's Telegram ID.
	TelegramID int64

	// ChatID is where replies go.
	ChatID int64

	// User is the registered sender.
	User *user.User

	// Args is the text after the command.
	Args string

	// Progress delivers an interim reply while a slow command runs.
	// May be nil.
	Progress func(ctx context.Context, r Reply)
}

func (r Request) progress(ctx context.Context, reply Reply) {
	if r.Progress != nil {
		r.Progress(ctx, reply)
	}
}

// Reply is one outgoing message.
type Reply struct {
	// Text is the message text.
	Text string

	// ParseMode is the parse mode (HTML or empty).
	ParseMode string

	// Keyboard is the inline keyboard to attach.
	Keyboard *presenter.InlineKeyboard

	// Menu replaces the reply keyboard under the input field.
	Menu *presenter.ReplyKeyboard
}

// Response is what a command produces, in delivery order.
type Response struct {
	Replies []Reply
}

func single(text string) *Response {
	return &Response{Replies: []Reply{{Text: text}}}
}

func html(text string, kb *presenter.InlineKeyboard) *Response {
	return &Response{Replies: []Reply{{Text: text, ParseMode: presenter.ParseModeHTML, Keyboard: kb}}}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// Narrow views over the application layer.
// ══════════════════════════════════════════════════════════════════════════════

// QuestLister lists a user's quests.
type QuestLister interface {
	Handle(ctx context.Context, q query.ListQuestsQuery) (*query.ListQuestsResult, error)
}

// GateChecker reports whether a quest of a type can be issued.
type GateChecker interface {
	Handle(ctx context.Context, q query.CanIssueQuestQuery) (quest.Decision, error)
}

// QuestIssuer generates and stores a quest.
type QuestIssuer interface {
	Handle(ctx context.Context, cmd command.IssueQuestCommand) (*command.IssueQuestResult, error)
}

// ProfileReader builds a user profile.
type ProfileReader interface {
	Handle(ctx context.Context, q query.UserProfileQuery) (*query.UserProfile, error)
}

// HistoryReader returns recent chat messages.
type HistoryReader interface {
	Handle(ctx context.Context, q query.ChatHistoryQuery) ([]*chat.Message, error)
}

// StatsReader returns bot-wide statistics for admins.
type StatsReader interface {
	Handle(ctx context.Context, q query.AdminStatsQuery) (*query.AdminStats, error)
}
