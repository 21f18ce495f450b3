// Package middleware contains Telegram bot middlewares for request processing.
// These middlewares run for every incoming update before it reaches the
// handler: registration, rate limiting, panic recovery and chat logging.
package middleware

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT KEYS
// Used to pass data through the request context.
// ══════════════════════════════════════════════════════════════════════════════

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the registered user.
	UserContextKey contextKey = "user"

	// TelegramIDContextKey is the context key for the Telegram user ID.
	TelegramIDContextKey contextKey = "telegram_id"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH MIDDLEWARE
// Every interaction registers the caller implicitly. Known users are served
// from an LRU cache so most updates cost no store round trip.
// ══════════════════════════════════════════════════════════════════════════════

// Registrar returns the user for a Telegram profile, creating it when needed.
type Registrar interface {
	Handle(ctx context.Context, cmd command.RegisterUserCommand) (*command.RegisterUserResult, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// CacheSize is the number of users kept in memory.
	CacheSize int

	// CacheTTL bounds how long a cached identity is trusted.
	CacheTTL time.Duration
}

// DefaultAuthConfig returns sensible defaults for auth middleware.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		CacheSize: 10_000,
		CacheTTL:  30 * time.Minute,
	}
}

// AuthMiddleware resolves the Telegram sender to a registered user.
type AuthMiddleware struct {
	registrar Registrar
	config    AuthConfig
	cache     *lru.Cache
	now       func() time.Time
}

type cacheEntry struct {
	user     user.User
	cachedAt time.Time
}

// NewAuthMiddleware creates a new auth middleware with the given configuration.
func NewAuthMiddleware(registrar Registrar, config AuthConfig) (*AuthMiddleware, error) {
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultAuthConfig().CacheSize
	}

	cache, err := lru.New(config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("auth: create cache: %w", err)
	}

	return &AuthMiddleware{
		registrar: registrar,
		config:    config,
		cache:     cache,
		now:       time.Now,
	}, nil
}

// Profile is what Telegram tells us about the sender.
type Profile struct {
	TelegramID int64
	Username   string
	FirstName  string
}

// AuthResult represents the result of authentication.
type AuthResult struct {
	// User is the registered user. Only identity fields are guaranteed fresh;
	// load the user from the store when level or experience matter.
	User *user.User

	// Created is true when this update registered the user.
	Created bool
}

// Authenticate returns the user for the sender, registering it on first contact.
func (m *AuthMiddleware) Authenticate(ctx context.Context, p Profile) (*AuthResult, error) {
	if v, ok := m.cache.Get(p.TelegramID); ok {
		entry := v.(cacheEntry)
		if m.config.CacheTTL <= 0 || m.now().Sub(entry.cachedAt) < m.config.CacheTTL {
			u := entry.user
			return &AuthResult{User: &u}, nil
		}
		m.cache.Remove(p.TelegramID)
	}

	res, err := m.registrar.Handle(ctx, command.RegisterUserCommand{
		TelegramID: user.TelegramID(p.TelegramID),
		Username:   p.Username,
		FirstName:  p.FirstName,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: register user: %w", err)
	}

	m.cache.Add(p.TelegramID, cacheEntry{user: *res.User, cachedAt: m.now()})

	return &AuthResult{User: res.User, Created: res.Created}, nil
}

// InvalidateCache removes a user from the auth cache.
func (m *AuthMiddleware) InvalidateCache(telegramID int64) {
	m.cache.Remove(telegramID)
}

// CachedUsers returns the number of cached identities.
func (m *AuthMiddleware) CachedUsers() int {
	return m.cache.Len()
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// ContextWithUser adds the registered user to the context.
func ContextWithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

// UserFromContext retrieves the registered user from context.
// Returns nil if no user is in the context.
func UserFromContext(ctx context.Context) *user.User {
	u, ok := ctx.Value(UserContextKey).(*user.User)
	if !ok {
		return nil
	}
	return u
}

// ContextWithTelegramID adds the Telegram ID to the context.
func ContextWithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, TelegramIDContextKey, telegramID)
}

// TelegramIDFromContext retrieves the Telegram ID from context.
// Returns 0 if not found.
func TelegramIDFromContext(ctx context.Context) int64 {
	id, ok := ctx.Value(TelegramIDContextKey).(int64)
	if !ok {
		return 0
	}
	return id
}
