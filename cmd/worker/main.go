// Package main - точка входа фонового процесса рассылки квестов.
//
// Worker запускает только планировщик: ежедневную и еженедельную рассылку
// квестов и истечение просроченных. Его можно держать рядом с ботом,
// который запущен с SCHEDULER_ENABLED=false. При включённом Redis запуски
// задач не пересекаются между процессами.
//
// Флаг -run выполняет одну задачу немедленно и завершает процесс:
//
//	worker -run daily
//	worker -run weekly
//	worker -run expire
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/questforge/questbot/config"
	"github.com/questforge/questbot/internal/app"
	"github.com/questforge/questbot/internal/interface/telegram"
	"github.com/questforge/questbot/internal/interface/telegram/middleware"
	"github.com/questforge/questbot/pkg/logger"
)

// jobNames maps -run values to scheduler job names.
var jobNames = map[string]string{
	"daily":  "issue_daily_quests",
	"weekly": "issue_weekly_quests",
	"expire": "expire_quests",
}

func main() {
	runOnce := flag.String("run", "", "run one job now and exit: daily, weekly or expire")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *runOnce); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, runOnce string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := app.NewLogger(cfg).With(logger.Component("worker"))

	var jobName string
	if runOnce != "" {
		name, ok := jobNames[runOnce]
		if !ok {
			return fmt.Errorf("unknown job %q: want daily, weekly or expire", runOnce)
		}
		jobName = name
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ЗАВИСИМОСТИ
	// ─────────────────────────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close connections", logger.Err(err))
		}
	}()

	// Бот не нужен: роутер только отправляет квесты пользователям
	router := a.NewRouter(middleware.NewChatLog(a.SaveMessage, log))
	sched, err := a.NewScheduler(telegram.NewQuestNotifier(router))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. РАЗОВЫЙ ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	if jobName != "" {
		log.Info("running job once", slog.String("job", jobName))
		res, err := sched.RunNow(ctx, jobName)
		if err != nil {
			return fmt.Errorf("run %s: %w", jobName, err)
		}
		log.Info("job finished",
			slog.String("job", jobName),
			slog.Bool("skipped", res.Skipped),
			logger.Latency(res.Duration),
		)
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, j := range sched.ListJobs() {
		log.Info("job scheduled",
			slog.String("job", j.Name),
			slog.String("schedule", j.Schedule),
			slog.Time("next_run", j.NextRun),
		)
	}

	<-ctx.Done()
	log.Info("received shutdown signal, waiting for running jobs...")

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler", logger.Err(err))
	}
	log.Info("worker stopped")
	return nil
}
