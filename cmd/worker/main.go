// Package main - точка входа фонового процесса (Worker) трекера.
//
// Worker только выполняет ежедневный прогон по расписанию, без HTTP API.
// С флагом -once прогон выполняется сразу, после чего процесс завершается.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alem-hub/cf-progress-tracker/config"
	"github.com/alem-hub/cf-progress-tracker/internal/app"
	"github.com/alem-hub/cf-progress-tracker/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run the sync pipeline once and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg.Log)
	log.Info("starting cf-progress-tracker worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("once", once),
	)

	// Разовый прогон не зависит от SCHEDULER_ENABLED.
	if once {
		cfg.Scheduler.Enabled = false
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. РАЗОВЫЙ ПРОГОН
	// ─────────────────────────────────────────────────────────────────────────
	if once {
		result, err := a.RunPipeline(ctx, "manual")
		if err != nil {
			return fmt.Errorf("pipeline failed: %w", err)
		}
		log.Info("pipeline finished",
			logger.Int("synced", result.Sync.Synced),
			logger.Int("failed", result.Sync.Failed),
			logger.Int("reminded", result.Inactivity.Notified),
			logger.Bool("interrupted", result.Sync.Interrupted),
		)
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	if a.Scheduler == nil {
		return errors.New("scheduler is disabled (SCHEDULER_ENABLED=false); use -once for a single run")
	}
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if cfg.Scheduler.RunOnStart {
		go func() {
			if _, err := a.RunPipeline(ctx, "startup"); err != nil {
				log.Error("startup pipeline failed", logger.Err(err))
			}
		}()
	}

	log.Info("worker is running", logger.String("schedule", cfg.Scheduler.DailySyncCron))

	<-ctx.Done()
	log.Info("received shutdown signal, stopping scheduler...")

	// Stop cancels a running job and waits for it; the batch ends after the
	// current student.
	if err := a.Scheduler.Stop(); err != nil {
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}
