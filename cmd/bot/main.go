// Package main - точка входа Telegram-бота с квестами.
//
// Бот выдаёт пользователям ежедневные и еженедельные квесты, которые
// генерирует языковая модель, начисляет опыт за выполненные задания и
// повышает уровень. Помимо polling/webhook бота процесс поднимает HTTP
// сервер (health, webhook, admin API) и планировщик рассылок.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/questforge/questbot/config"
	"github.com/questforge/questbot/internal/app"
	"github.com/questforge/questbot/internal/infrastructure/scheduler"
	httpserver "github.com/questforge/questbot/internal/interface/http"
	"github.com/questforge/questbot/internal/interface/http/handlers"
	"github.com/questforge/questbot/internal/interface/telegram"
	"github.com/questforge/questbot/internal/interface/telegram/middleware"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := app.NewLogger(cfg)
	log.Info("starting quest bot",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
		slog.String("timezone", cfg.App.Location.String()),
		slog.String("database", cfg.Database.Driver),
		slog.String("telegram_mode", cfg.Telegram.Mode),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ, КЛИЕНТЫ, APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections...")
		if err := a.Close(); err != nil {
			log.Error("failed to close connections", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	chatLog := middleware.NewChatLog(a.SaveMessage, log)
	router := a.NewRouter(chatLog)
	bot, err := a.NewBot(router, chatLog)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = a.NewScheduler(telegram.NewQuestNotifier(router))
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	var httpServer *httpserver.Server
	if cfg.HTTP.Enabled {
		httpServer, err = newHTTPServer(cfg, a, bot, sched, log)
		if err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК СЕРВИСОВ
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 2)

	if httpServer != nil {
		go func() {
			log.Info("starting HTTP server", slog.String("address", httpServer.Address()))
			if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server error: %w", err)
			}
		}()
	}

	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// В режиме polling Start блокируется до отмены контекста
	go func() {
		if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("telegram bot error: %w", err)
		}
	}()

	log.Info("quest bot is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	}

	timeout := cfg.App.ShutdownTimeout.Std()
	log.Info("starting graceful shutdown...", slog.String("timeout", timeout.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var shutdownErr error

	// Сначала перестаём принимать обновления
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop HTTP server gracefully", logger.Err(err))
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}
	if err := bot.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop bot gracefully", logger.Err(err))
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler", logger.Err(err))
		}
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// newHTTPServer assembles health checks, the webhook endpoint and the admin API.
func newHTTPServer(cfg *config.Config, a *app.App, bot *telegram.Bot, sched *scheduler.Scheduler, log *slog.Logger) (*httpserver.Server, error) {
	health := handlers.NewHealthRegistry(cfg.App.Version)
	health.Critical("database", handlers.PingCheck(a.Store))
	if a.Cache != nil {
		health.Optional("redis", handlers.PingCheck(a.Cache))
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.WebhookSecret = cfg.Telegram.WebhookSecret
	httpCfg.APIKeys = cfg.HTTP.APIKeys

	deps := httpserver.Dependencies{
		Logger:  log,
		Health:  health,
		Stats:   a.AdminStats,
		Metrics: bot,
	}
	if sched != nil {
		deps.Jobs = sched
	}

	if cfg.Telegram.Mode == config.ModeWebhook {
		u, err := url.Parse(cfg.Telegram.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook URL: %w", err)
		}
		if u.Path != "" {
			httpCfg.WebhookPath = u.Path
		}
		deps.Dispatcher = bot
	}

	return httpserver.NewServer(httpCfg, deps), nil
}
