package query

import (
	"context"

	"github.com/questforge/questbot/internal/domain/leveling"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROFILE QUERY
// Уровень, прогресс до следующего уровня и счётчики квестов (/profile).
// ══════════════════════════════════════════════════════════════════════════════

// UserProfileQuery - чей профиль показать.
type UserProfileQuery struct {
	UserID user.ID
}

// UserProfile - DTO профиля.
type UserProfile struct {
	User     *user.User
	Progress leveling.Progress

	Completed int
	Pending   int
	Failed    int
}

// UserProfileHandler обрабатывает UserProfileQuery.
type UserProfileHandler struct {
	users  user.Repository
	quests quest.Repository
	levels *leveling.Calculator
}

// NewUserProfileHandler создаёт обработчик.
func NewUserProfileHandler(users user.Repository, quests quest.Repository, levels *leveling.Calculator) *UserProfileHandler {
	return &UserProfileHandler{users: users, quests: quests, levels: levels}
}

// Handle собирает профиль.
func (h *UserProfileHandler) Handle(ctx context.Context, q UserProfileQuery) (*UserProfile, error) {
	u, err := h.users.GetByID(ctx, q.UserID)
	if err != nil {
		return nil, shared.Persistence("user", "GetByID", err)
	}

	all, err := h.quests.ListByUser(ctx, u.ID, quest.ListFilter{})
	if err != nil {
		return nil, shared.Persistence("quest", "ListByUser", err)
	}

	p := &UserProfile{
		User:     u,
		Progress: h.levels.LevelFromExperience(u.Experience),
	}
	for _, item := range all {
		switch item.Status {
		case quest.StatusCompleted:
			p.Completed++
		case quest.StatusPending:
			p.Pending++
		case quest.StatusFailed:
			p.Failed++
		}
	}
	return p, nil
}
