package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/questforge/questbot/internal/application/query"
	"github.com/questforge/questbot/internal/infrastructure/scheduler"
	"github.com/questforge/questbot/internal/interface/telegram"
	"github.com/questforge/questbot/internal/interface/telegram/middleware"
	"github.com/questforge/questbot/pkg/logger"
)

// StatsProvider returns aggregate quest statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (*query.AdminStats, error)
}

// BotMetrics exposes runtime counters of the bot.
type BotMetrics interface {
	Metrics() middleware.MetricsSnapshot
	GetStats() telegram.StatsSnapshot
}

// JobLister lists scheduled jobs.
type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

// AdminHandler serves the read-only admin API.
type AdminHandler struct {
	stats   StatsProvider
	metrics BotMetrics
	jobs    JobLister
	logger  *slog.Logger
}

// NewAdminHandler creates an admin handler. Nil providers answer 404.
func NewAdminHandler(stats StatsProvider, metrics BotMetrics, jobs JobLister, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		stats:   stats,
		metrics: metrics,
		jobs:    jobs,
		logger:  log.With(logger.Component("admin_api")),
	}
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		RespondWithError(w, http.StatusNotFound, "not_configured", "")
		return
	}
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to compute stats", logger.Err(err))
		RespondWithError(w, http.StatusInternalServerError, "stats_unavailable", "")
		return
	}
	RespondWithJSON(w, http.StatusOK, stats)
}

// MetricsResponse combines update counters with per-command metrics.
type MetricsResponse struct {
	Bot      telegram.StatsSnapshot     `json:"bot"`
	Commands middleware.MetricsSnapshot `json:"commands"`
}

// Metrics handles GET /admin/metrics.
func (h *AdminHandler) Metrics(w http.ResponseWriter, _ *http.Request) {
	if h.metrics == nil {
		RespondWithError(w, http.StatusNotFound, "not_configured", "")
		return
	}
	RespondWithJSON(w, http.StatusOK, MetricsResponse{
		Bot:      h.metrics.GetStats(),
		Commands: h.metrics.Metrics(),
	})
}

// Jobs handles GET /admin/jobs.
func (h *AdminHandler) Jobs(w http.ResponseWriter, _ *http.Request) {
	if h.jobs == nil {
		RespondWithError(w, http.StatusNotFound, "not_configured", "")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"jobs": h.jobs.ListJobs()})
}
