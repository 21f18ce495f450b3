// Package app assembles the bot from configuration. Both the bot process and
// the scheduler-only worker build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/questforge/questbot/config"
	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/application/query"
	"github.com/questforge/questbot/internal/domain/leveling"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/infrastructure/external/generator"
	"github.com/questforge/questbot/internal/infrastructure/external/telegram"
	"github.com/questforge/questbot/internal/infrastructure/persistence"
	"github.com/questforge/questbot/internal/infrastructure/persistence/redis"
	"github.com/questforge/questbot/internal/infrastructure/scheduler"
	"github.com/questforge/questbot/internal/infrastructure/scheduler/jobs"
	"github.com/questforge/questbot/pkg/circuitbreaker"
	"github.com/questforge/questbot/pkg/logger"
)

// App holds the wired components.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store    *persistence.Store
	Cache    *redis.Cache // nil when Redis is disabled
	Telegram *telegram.Client

	Gate   *quest.Gate
	Levels *leveling.Calculator

	// Commands
	RegisterUser *command.RegisterUserHandler
	IssueQuest   *command.IssueQuestHandler
	ToggleTask   *command.ToggleTaskHandler
	FailQuest    *command.FailQuestHandler
	SaveMessage  *command.SaveChatMessageHandler

	// Queries
	ListQuests  *query.ListQuestsHandler
	CanIssue    *query.CanIssueQuestHandler
	Profile     *query.UserProfileHandler
	ChatHistory *query.ChatHistoryHandler
	AdminStats  *query.AdminStatsHandler

	closers []func() error
}

// New connects the store, Redis and external clients and builds the
// application layer.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	store, err := persistence.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var statsCache query.StatsCache
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, stats cache and job locks disabled", logger.Err(err))
		} else {
			a.Cache = cache
			a.closers = append(a.closers, cache.Close)
			statsCache = redis.NewStatsCache(cache, cfg.Redis.StatsTTL.Std())
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ВНЕШНИЕ КЛИЕНТЫ
	// ─────────────────────────────────────────────────────────────────────────
	onBreaker := func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}

	genCfg := generator.DefaultConfig()
	genCfg.APIKey = cfg.Generator.APIKey
	genCfg.BaseURL = cfg.Generator.BaseURL
	genCfg.Model = cfg.Generator.Model
	genCfg.Timeout = cfg.Generator.Timeout.Std()
	genCfg.Temperature = cfg.Generator.Temperature
	genCfg.RateLimiter.RequestsPerSecond = cfg.Generator.RequestsPerSecond
	genCfg.RateLimiter.BurstSize = cfg.Generator.Burst
	genCfg.Logger = log
	gen, err := generator.New(genCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create generator: %w", err)
	}

	tgCfg := telegram.DefaultClientConfig(cfg.Telegram.Token)
	tgCfg.Breaker = circuitbreaker.TelegramAPIBreaker(onBreaker, telegram.IsOutage)
	tgCfg.Logger = log
	tgCfg.Debug = cfg.App.Debug
	a.Telegram = telegram.NewClient(tgCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	a.Gate = quest.NewGate(quest.Policy{
		DailyTTL:  cfg.Quest.DailyTTL.Std(),
		WeeklyTTL: cfg.Quest.WeeklyTTL.Std(),
	})
	a.Levels = leveling.NewCalculator(leveling.Rules{
		BaseExp:       cfg.Quest.BaseExp,
		ExpStep:       cfg.Quest.ExpStep,
		DailyTaskExp:  cfg.Quest.DailyTaskExp,
		WeeklyTaskExp: cfg.Quest.WeeklyTaskExp,
		DailyBonus:    cfg.Quest.DailyBonus,
		WeeklyBonus:   cfg.Quest.WeeklyBonus,
	})

	a.RegisterUser = command.NewRegisterUserHandler(store.Users)
	a.IssueQuest = command.NewIssueQuestHandler(
		store.Users, store.Quests, a.Gate, gen,
		circuitbreaker.GeneratorBreaker(onBreaker),
		command.IssueQuestConfig{
			GenerateAttempts: cfg.Generator.Attempts,
			RetryDelay:       cfg.Generator.RetryDelay.Std(),
		},
		log,
	)
	a.ToggleTask = command.NewToggleTaskHandler(store.UoW, a.Levels, command.ToggleTaskConfig{
		AllowUncompletingFinishedTask: cfg.Quest.AllowUncompletingFinishedTask,
	}, log)
	a.FailQuest = command.NewFailQuestHandler(store.Quests, a.Gate, log)
	a.SaveMessage = command.NewSaveChatMessageHandler(store.Messages)

	a.ListQuests = query.NewListQuestsHandler(store.Quests)
	a.CanIssue = query.NewCanIssueQuestHandler(store.Quests, a.Gate)
	a.Profile = query.NewUserProfileHandler(store.Users, store.Quests, a.Levels)
	a.ChatHistory = query.NewChatHistoryHandler(store.Messages)
	a.AdminStats = query.NewAdminStatsHandler(store.Users, store.Quests, statsCache, cfg.Telegram.AdminIDs, log)

	return a, nil
}

// NewScheduler registers the broadcast and expiry jobs. notifier delivers
// broadcast quests to users.
func (a *App) NewScheduler(notifier command.Notifier) (*scheduler.Scheduler, error) {
	cfg := a.Config

	schedCfg := scheduler.Config{
		Logger:     a.Logger,
		Timezone:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout.Std(),
	}
	if a.Cache != nil {
		schedCfg.Locker = redis.NewLocker(a.Cache)
	}
	s := scheduler.New(schedCfg)

	broadcast := command.NewIssueForAllHandler(a.Store.Users, a.IssueQuest, notifier, command.IssueForAllConfig{
		Concurrency: cfg.Scheduler.BatchConcurrency,
		PageSize:    command.DefaultIssueForAllConfig().PageSize,
	}, a.Logger)

	if err := s.RegisterCron(jobs.NewIssueQuestsJob(broadcast, quest.TypeDaily, a.Logger), cfg.Scheduler.DailyCron); err != nil {
		return nil, err
	}
	if err := s.RegisterCron(jobs.NewIssueQuestsJob(broadcast, quest.TypeWeekly, a.Logger), cfg.Scheduler.WeeklyCron); err != nil {
		return nil, err
	}
	if cfg.Quest.AutoFailExpired {
		expire := jobs.NewExpireQuestsJob(a.FailQuest, 0, a.Logger)
		if err := s.RegisterEvery(expire, cfg.Scheduler.ExpireInterval.Std()); err != nil {
			return nil, err
		}
	}

	s.OnJobComplete(func(r scheduler.JobResult) {
		if r.Error != nil {
			a.Logger.Error("job failed",
				slog.String("job", r.JobName),
				logger.Latency(r.Duration),
				logger.Err(r.Error),
			)
		}
	})

	return s, nil
}

// Close releases every connection opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	return rc
}

// NewLogger builds the process logger from the observability section and
// makes it the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Level = cfg.Observability.LogLevel
	if cfg.App.Debug {
		opts.Level = "debug"
	}
	if cfg.Observability.LogFormat != "" {
		opts.Format = logger.Format(cfg.Observability.LogFormat)
	}
	opts.AddSource = cfg.App.Debug
	opts.Service = cfg.App.Name

	log := logger.New(opts)
	slog.SetDefault(log)
	return log
}
