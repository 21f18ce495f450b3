package telegram

import (
	"context"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/internal/interface/telegram/handler"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
)

// QuestNotifier pushes quests issued by scheduled broadcasts to users.
type QuestNotifier struct {
	router *Router
}

// NewQuestNotifier creates a notifier that delivers through the router.
func NewQuestNotifier(router *Router) *QuestNotifier {
	return &QuestNotifier{router: router}
}

// NotifyQuestIssued sends the new quest card with its task keyboard.
func (n *QuestNotifier) NotifyQuestIssued(ctx context.Context, u *user.User, q *quest.Quest) error {
	snap := q.Snapshot()
	return n.router.SendReply(ctx, int64(u.TelegramID), u, handler.Reply{
		Text:      presenter.NewQuestCard(snap),
		ParseMode: presenter.ParseModeHTML,
		Keyboard:  presenter.TaskKeyboard(snap),
	})
}
