// Package app wires configuration, storage, the Codeforces client, the mailer
// and the application handlers into one container shared by the server and
// worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/cf-progress-tracker/config"
	"github.com/alem-hub/cf-progress-tracker/internal/application/command"
	"github.com/alem-hub/cf-progress-tracker/internal/application/query"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/internal/infrastructure/email"
	"github.com/alem-hub/cf-progress-tracker/internal/infrastructure/external/codeforces"
	"github.com/alem-hub/cf-progress-tracker/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/cf-progress-tracker/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/cf-progress-tracker/internal/infrastructure/scheduler"
	"github.com/alem-hub/cf-progress-tracker/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/alem-hub/cf-progress-tracker/internal/interface/http"
	"github.com/alem-hub/cf-progress-tracker/internal/interface/http/handlers"
	"github.com/alem-hub/cf-progress-tracker/pkg/logger"
	"github.com/alem-hub/cf-progress-tracker/pkg/retry"
	"github.com/alem-hub/cf-progress-tracker/pkg/timeutil"
)

// App holds every long-lived dependency of a process.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	slog   *slog.Logger

	DB    *postgres.Connection
	Redis *redis.Cache // nil when Redis is disabled or unreachable

	Students *postgres.StudentRepository

	// Command side
	SyncStudent     *command.SyncStudentHandler
	SyncAll         *command.SyncAllStudentsHandler
	CheckInactivity *command.CheckInactivityHandler
	Pipeline        *command.RunPipelineHandler
	ManageStudents  *command.ManageStudentHandler

	// Query side
	ListStudents *query.ListStudentsHandler
	GetStudent   *query.GetStudentHandler
	GetStats     *query.GetStudentStatsHandler
	ExportReport *query.ExportReportHandler

	// Scheduler is nil when SCHEDULER_ENABLED=false.
	Scheduler *scheduler.Scheduler
}

// NewLogger builds the process logger from config and installs the slog
// bridge as the default slog logger.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Level)
	opts.Pretty = cfg.Pretty

	log := logger.New(opts)
	slog.SetDefault(log.Slog())
	return log
}

// New connects to storage and builds the handlers. The caller must Close the
// returned App.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: log,
		slog:   log.Slog(),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. POSTGRES
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.connectPostgres(ctx); err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(a.DB).Migrate(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed", logger.Int("applied", applied))
	}

	a.Students = postgres.NewStudentRepository(a.DB)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache student.Cache
		lock  student.SyncLock
	)
	if !cfg.Redis.Disabled {
		if err := a.connectRedis(ctx); err != nil {
			log.Warn("redis unavailable, running without cache and with in-process sync locks", logger.Err(err))
		} else {
			cache = redis.NewStudentCache(a.Redis, cfg.Redis.StudentTTL)
			lock = redis.NewSyncLock(a.Redis, a.slog)
		}
	}
	if lock == nil {
		lock = command.NewLocalSyncLock()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	cf := codeforces.NewClient(codeforces.ClientConfig{
		BaseURL:            cfg.Codeforces.BaseURL,
		PacingDelay:        cfg.Codeforces.PacingDelay,
		RatingTimeout:      cfg.Codeforces.RatingTimeout,
		SubmissionsTimeout: cfg.Codeforces.SubmissionsTimeout,
		Logger:             a.slog,
	})

	var sender command.ReminderSender
	if cfg.SMTP.Enabled {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
		}, a.slog)
	} else {
		log.Warn("SMTP disabled, reminders are only logged")
		sender = email.NewLogSender(a.slog)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock{}
	policy := student.InactivityPolicy{
		Threshold:    cfg.Inactivity.Threshold,
		MaxReminders: cfg.Inactivity.MaxReminders,
	}

	syncer := command.NewSyncer(cf, clock, cfg.Codeforces.SubmissionsCount, a.slog)
	a.SyncStudent = command.NewSyncStudentHandler(a.Students, syncer, lock, cache, cfg.Redis.SyncLockTTL, a.slog)
	a.SyncAll = command.NewSyncAllStudentsHandler(a.Students, a.SyncStudent, cfg.Scheduler.StudentDelay, a.slog)
	a.CheckInactivity = command.NewCheckInactivityHandler(a.Students, sender, policy, clock, cache, a.slog)
	a.Pipeline = command.NewRunPipelineHandler(a.SyncAll, a.CheckInactivity, a.slog)
	a.ManageStudents = command.NewManageStudentHandler(a.Students, syncer, lock, a.CheckInactivity, cache, clock, a.slog)

	a.ListStudents = query.NewListStudentsHandler(a.Students, a.slog)
	a.GetStudent = query.NewGetStudentHandler(a.Students, cache, a.slog)
	a.GetStats = query.NewGetStudentStatsHandler(a.Students, cache, clock, cfg.App.Location, a.slog)
	a.ExportReport = query.NewExportReportHandler(a.Students, clock, a.slog)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(scheduler.Config{
			Logger:   a.slog,
			Location: cfg.App.Location,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := sched.Register(jobs.NewDailySyncJob(a.Pipeline, "schedule", a.slog), cfg.Scheduler.DailySyncCron); err != nil {
			a.Close()
			return nil, err
		}
		a.Scheduler = sched
	}

	return a, nil
}

func (a *App) connectPostgres(ctx context.Context) error {
	a.Logger.Info("connecting to database...")

	opts := postgres.PoolOptions{
		MaxConns:        int32(a.Config.Database.MaxOpenConns),
		MinConns:        int32(a.Config.Database.MaxIdleConns),
		MaxConnLifetime: a.Config.Database.ConnMaxLifetime,
		MaxConnIdleTime: a.Config.Database.ConnMaxIdleTime,
	}

	err := retry.Connect(a.onRetry("postgres")).Do(ctx, func(ctx context.Context) error {
		conn, err := postgres.NewConnection(ctx, a.Config.Database.URL, opts)
		if err != nil {
			return err
		}
		a.DB = conn
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	a.Logger.Info("database connection established")
	return nil
}

func (a *App) connectRedis(ctx context.Context) error {
	rc := a.Config.Redis
	cfg := redis.DefaultConfig()
	cfg.URL = rc.URL
	cfg.Host = rc.Host
	cfg.Port = rc.Port
	cfg.Password = rc.Password
	cfg.DB = rc.DB
	if rc.PoolSize > 0 {
		cfg.PoolSize = rc.PoolSize
	}

	return retry.Connect(a.onRetry("redis")).Do(ctx, func(ctx context.Context) error {
		c, err := redis.NewCache(ctx, cfg)
		if err != nil {
			return err
		}
		a.Redis = c
		a.Logger.Info("redis connection established")
		return nil
	})
}

func (a *App) onRetry(target string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		a.Logger.Warn("connection attempt failed",
			logger.Component(target),
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Err(err),
		)
	}
}

// RunPipeline runs sync-all plus the inactivity sweep once, outside the
// schedule.
func (a *App) RunPipeline(ctx context.Context, trigger string) (*command.RunPipelineResult, error) {
	return a.Pipeline.Handle(ctx, command.RunPipelineCommand{Trigger: trigger})
}

// HealthChecker returns a checker covering the database and, when present,
// Redis.
func (a *App) HealthChecker() *handlers.HealthChecker {
	checker := handlers.NewHealthChecker(a.Config.App.Version)
	checker.AddCheck("database", handlers.PingCheck(a.DB))
	if a.Redis != nil {
		checker.AddCheck("cache", handlers.PingCheck(a.Redis))
	}
	return checker
}

// HTTPServer builds the API server over the App's handlers.
func (a *App) HTTPServer() *httpserver.Server {
	cfg := httpserver.DefaultConfig()
	cfg.Port = a.Config.HTTP.Port
	cfg.ReadTimeout = a.Config.HTTP.ReadTimeout
	cfg.WriteTimeout = a.Config.HTTP.WriteTimeout
	cfg.IdleTimeout = a.Config.HTTP.IdleTimeout
	cfg.AllowedOrigins = a.Config.HTTP.AllowedOrigins

	deps := httpserver.Dependencies{
		ListStudents:    a.ListStudents,
		GetStudent:      a.GetStudent,
		GetStats:        a.GetStats,
		ExportReport:    a.ExportReport,
		ManageStudents:  a.ManageStudents,
		SyncStudent:     a.SyncStudent,
		RunPipeline:     a.Pipeline,
		CheckInactivity: a.CheckInactivity,
		Health:          a.HealthChecker(),
		Logger:          a.Logger.With(logger.Component("http")),
	}
	if a.Scheduler != nil {
		deps.Jobs = a.Scheduler
	}

	return httpserver.NewServer(cfg, deps)
}

// Close releases storage connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis", logger.Err(err))
		}
	}
	if a.DB != nil {
		a.Logger.Info("closing database connection...")
		a.DB.Close()
	}
}
