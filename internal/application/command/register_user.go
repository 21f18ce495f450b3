// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER USER COMMAND
// Finds the user by Telegram ID or creates a new one. Every interaction with
// the bot goes through here, so registration is implicit.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand contains the Telegram profile of the caller.
type RegisterUserCommand struct {
	TelegramID user.TelegramID
	Username   string
	FirstName  string
}

// Validate validates the command.
func (c RegisterUserCommand) Validate() error {
	if !c.TelegramID.IsValid() {
		return shared.InvalidArgument("user", "Register", "telegram_id is required")
	}
	return nil
}

// RegisterUserResult contains the registered (or existing) user.
type RegisterUserResult struct {
	User *user.User

	// Created is true when the user did not exist before.
	Created bool
}

// RegisterUserHandler handles RegisterUserCommand.
type RegisterUserHandler struct {
	users user.Repository
	now   func() time.Time
}

// NewRegisterUserHandler creates a new RegisterUserHandler.
func NewRegisterUserHandler(users user.Repository) *RegisterUserHandler {
	return &RegisterUserHandler{
		users: users,
		now:   time.Now,
	}
}

// Handle returns the user for the given Telegram ID, creating it when needed.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*RegisterUserResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	existing, err := h.users.GetByTelegramID(ctx, cmd.TelegramID)
	switch {
	case err == nil:
		if existing.UpdateProfile(cmd.Username, cmd.FirstName) {
			if err := h.users.Update(ctx, existing); err != nil {
				return nil, fmt.Errorf("register_user: update profile: %w", err)
			}
		}
		return &RegisterUserResult{User: existing}, nil
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("register_user: lookup: %w", err)
	}

	u, err := user.NewUser(cmd.TelegramID, cmd.Username, cmd.FirstName, h.now())
	if err != nil {
		return nil, err
	}

	if err := h.users.Create(ctx, u); err != nil {
		// Concurrent first contact: someone else inserted the row.
		if shared.IsAlreadyExists(err) {
			existing, getErr := h.users.GetByTelegramID(ctx, cmd.TelegramID)
			if getErr != nil {
				return nil, fmt.Errorf("register_user: reload: %w", getErr)
			}
			return &RegisterUserResult{User: existing}, nil
		}
		return nil, fmt.Errorf("register_user: create: %w", err)
	}

	return &RegisterUserResult{User: u, Created: true}, nil
}
