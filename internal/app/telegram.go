package app

import (
	"fmt"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/interface/telegram"
	"github.com/questforge/questbot/internal/interface/telegram/handler"
	"github.com/questforge/questbot/internal/interface/telegram/handler/callback"
	"github.com/questforge/questbot/internal/interface/telegram/middleware"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
	"github.com/questforge/questbot/pkg/timeutil"
)

// NewRouter registers every command and callback on a router that replies
// through the Telegram client.
func (a *App) NewRouter(chatLog *middleware.ChatLog) *telegram.Router {
	cfg := a.Config

	r := telegram.NewRouter(a.Telegram, telegram.RouterConfig{
		Logger:  a.Logger,
		Debug:   cfg.App.Debug,
		ChatLog: chatLog,
	})

	dailyAt, weeklyAt := "", ""
	if cfg.Scheduler.Enabled {
		dailyAt = timeutil.DescribeCron(cfg.Scheduler.DailyCron)
		weeklyAt = timeutil.DescribeCron(cfg.Scheduler.WeeklyCron)
	}

	r.RegisterCommand(handler.CmdStart, handler.NewStartHandler())
	r.RegisterCommand(handler.CmdHelp, handler.NewHelpHandler(dailyAt, weeklyAt))
	r.RegisterCommand(handler.CmdMyQuests, handler.NewMyQuestsHandler(a.ListQuests))
	r.RegisterCommand(handler.CmdDaily, handler.NewGenerateHandler(quest.TypeDaily, a.CanIssue, a.IssueQuest, a.Logger))
	r.RegisterCommand(handler.CmdWeekly, handler.NewGenerateHandler(quest.TypeWeekly, a.CanIssue, a.IssueQuest, a.Logger))
	r.RegisterCommand(handler.CmdProfile, handler.NewProfileHandler(a.Profile))
	r.RegisterCommand(handler.CmdHistory, handler.NewHistoryHandler(a.ChatHistory, cfg.App.Location))
	r.RegisterCommand(handler.CmdAdminStats, handler.NewAdminStatsHandler(a.AdminStats))

	r.RegisterCallbackPrefix(presenter.ToggleTaskPrefix, callback.NewToggleTaskHandler(a.ToggleTask, a.Logger))

	return r
}

// NewBot builds the update pipeline around router.
func (a *App) NewBot(router *telegram.Router, chatLog *middleware.ChatLog) (*telegram.Bot, error) {
	cfg := a.Config

	auth, err := middleware.NewAuthMiddleware(a.RegisterUser, middleware.DefaultAuthConfig())
	if err != nil {
		return nil, fmt.Errorf("create auth middleware: %w", err)
	}

	limits := middleware.DefaultRateLimitConfig()
	if cfg.Telegram.UserRateLimit > 0 {
		limits.RequestsPerMinute = cfg.Telegram.UserRateLimit
	}

	recoveryCfg := middleware.DefaultRecoveryConfig()
	recoveryCfg.Logger = a.Logger

	botCfg := telegram.DefaultBotConfig()
	botCfg.Mode = cfg.Telegram.Mode
	botCfg.WebhookURL = cfg.Telegram.WebhookURL
	botCfg.WebhookSecret = cfg.Telegram.WebhookSecret
	botCfg.PollingTimeout = int(cfg.Telegram.PollingTimeout.Std().Seconds())
	botCfg.Debug = cfg.App.Debug
	botCfg.Logger = a.Logger
	if cfg.Telegram.MaxConcurrentUpdates > 0 {
		botCfg.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	}
	if cfg.App.ShutdownTimeout > 0 {
		botCfg.GracefulShutdownTimeout = cfg.App.ShutdownTimeout.Std()
	}

	return telegram.NewBot(botCfg, telegram.BotDependencies{
		API:             a.Telegram,
		Router:          router,
		Auth:            auth,
		RateLimiter:     middleware.NewRateLimiter(limits),
		GenerateLimiter: middleware.NewRateLimiter(middleware.GenerateRateLimitConfig()),
		Recovery:        middleware.NewRecoveryMiddleware(recoveryCfg),
		Metrics:         middleware.NewMetricsMiddleware(),
		ChatLog:         chatLog,
	})
}
