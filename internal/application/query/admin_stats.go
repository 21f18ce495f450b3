package query

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN STATS QUERY
// Сводная статистика бота для администраторов (/admin_stats и HTTP).
// ══════════════════════════════════════════════════════════════════════════════

// AdminStatsQuery - кто запрашивает статистику.
type AdminStatsQuery struct {
	RequesterID user.TelegramID
}

// AdminStats - сводка по пользователям и квестам.
type AdminStats struct {
	TotalUsers      int       `json:"total_users"`
	CompletedQuests int       `json:"completed_quests"`
	PendingQuests   int       `json:"pending_quests"`
	FailedQuests    int       `json:"failed_quests"`
	AverageLevel    float64   `json:"average_level"` // округлено до 0.1
	GeneratedAt     time.Time `json:"generated_at"`
}

// StatsCache - кэш сводки. Реализуется Redis; может отсутствовать.
type StatsCache interface {
	// GetStats заполняет dest и возвращает false при промахе.
	GetStats(ctx context.Context, dest *AdminStats) (bool, error)
	SetStats(ctx context.Context, stats *AdminStats) error
}

// AdminStatsHandler обрабатывает AdminStatsQuery.
type AdminStatsHandler struct {
	users  user.Repository
	quests quest.Repository
	cache  StatsCache
	admins map[user.TelegramID]struct{}
	log    *slog.Logger
	now    func() time.Time
}

// NewAdminStatsHandler создаёт обработчик. cache может быть nil.
func NewAdminStatsHandler(users user.Repository, quests quest.Repository, cache StatsCache, adminIDs []int64, log *slog.Logger) *AdminStatsHandler {
	admins := make(map[user.TelegramID]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[user.TelegramID(id)] = struct{}{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminStatsHandler{
		users:  users,
		quests: quests,
		cache:  cache,
		admins: admins,
		log:    log.With(logger.Component("admin_stats")),
		now:    time.Now,
	}
}

// IsAdmin проверяет, входит ли пользователь в список администраторов.
func (h *AdminStatsHandler) IsAdmin(id user.TelegramID) bool {
	_, ok := h.admins[id]
	return ok
}

// Handle проверяет права и возвращает статистику.
func (h *AdminStatsHandler) Handle(ctx context.Context, q AdminStatsQuery) (*AdminStats, error) {
	if !h.IsAdmin(q.RequesterID) {
		return nil, shared.ErrNotAdmin
	}
	return h.Stats(ctx)
}

// Stats возвращает статистику без проверки прав (HTTP-эндпоинт защищён своим ключом).
func (h *AdminStatsHandler) Stats(ctx context.Context) (*AdminStats, error) {
	if h.cache != nil {
		var cached AdminStats
		hit, err := h.cache.GetStats(ctx, &cached)
		if err != nil {
			h.log.Warn("stats cache read failed", logger.Err(err))
		} else if hit {
			return &cached, nil
		}
	}

	total, err := h.users.Count(ctx)
	if err != nil {
		return nil, shared.Persistence("user", "Count", err)
	}
	avg, err := h.users.AverageLevel(ctx)
	if err != nil {
		return nil, shared.Persistence("user", "AverageLevel", err)
	}
	counts, err := h.quests.CountByStatus(ctx)
	if err != nil {
		return nil, shared.Persistence("quest", "CountByStatus", err)
	}

	stats := &AdminStats{
		TotalUsers:      total,
		CompletedQuests: counts[quest.StatusCompleted],
		PendingQuests:   counts[quest.StatusPending],
		FailedQuests:    counts[quest.StatusFailed],
		AverageLevel:    math.Round(avg*10) / 10,
		GeneratedAt:     h.now().UTC(),
	}

	if h.cache != nil {
		if err := h.cache.SetStats(ctx, stats); err != nil {
			h.log.Warn("stats cache write failed", logger.Err(err))
		}
	}
	return stats, nil
}
