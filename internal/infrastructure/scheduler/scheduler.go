// Package scheduler runs the tracker's background jobs on top of gocron.
// Jobs are registered with a cron expression, run one at a time per job and
// can be triggered manually with RunNow.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string        `json:"jobName"`
	Trigger     string        `json:"trigger"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	LastResult  *JobResult `json:"lastResult,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("scheduler: job is nil")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrJobRunning              = errors.New("scheduler: job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Location cron expressions are evaluated in (default: UTC).
	Location *time.Location

	// MaxHistorySize bounds the number of kept job results.
	MaxHistorySize int
}

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	cron     gocron.Scheduler
	logger   *slog.Logger
	location *time.Location

	jobs    map[string]*entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	history    []JobResult
	maxHistory int
}

// entry wraps a Job with its gocron handle.
type entry struct {
	job      Job
	schedule string
	handle   gocron.Job

	// exec serializes scheduled and manual runs of the same job.
	exec sync.Mutex
	last *JobResult
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 100
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(cfg.Location))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron,
		logger:     cfg.Logger.With("component", "scheduler"),
		location:   cfg.Location,
		jobs:       make(map[string]*entry),
		ctx:        ctx,
		cancel:     cancel,
		maxHistory: cfg.MaxHistorySize,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job that runs on the given cron expression (five fields,
// evaluated in the scheduler's location). A run that would start while the
// previous one is still going is skipped.
func (s *Scheduler) Register(job Job, crontab string) error {
	if job == nil {
		return ErrNilJob
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{job: job, schedule: crontab}
	handle, err := s.cron.NewJob(
		gocron.CronJob(crontab, false),
		gocron.NewTask(func() { s.runScheduled(e) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register %s (%q): %w", name, crontab, err)
	}
	e.handle = handle
	s.jobs[name] = e

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", crontab,
		"location", s.location.String(),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.cron.Start()
	s.running = true

	for name, e := range s.jobs {
		if next, err := e.handle.NextRun(); err == nil {
			s.logger.Info("job scheduled", "job", name, "next_run", next.Format(time.RFC3339))
		}
	}
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels the context of running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}

	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a registered job synchronously with ctx. It returns
// ErrJobRunning when the same job is already executing. The job's own error
// is reported in the result, not as the returned error.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	if !e.exec.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer e.exec.Unlock()

	result := s.execute(ctx, e, "manual")
	return &result, nil
}

func (s *Scheduler) runScheduled(e *entry) {
	if !e.exec.TryLock() {
		s.logger.Warn("skipping scheduled run, job still running", "job", e.job.Name())
		return
	}
	defer e.exec.Unlock()

	s.execute(s.ctx, e, "schedule")
}

// execute runs the job and records its result. Panics are turned into a
// failed result so one bad run cannot take down the process.
func (s *Scheduler) execute(ctx context.Context, e *entry, trigger string) (result JobResult) {
	name := e.job.Name()
	result = JobResult{JobName: name, Trigger: trigger, StartedAt: time.Now()}

	s.logger.Info("job started", "job", name, "trigger", trigger)

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("panic: %v", r)
			result.Success = false
		}
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		s.record(e, result)

		if result.Success {
			s.logger.Info("job completed", "job", name, "trigger", trigger, "duration", result.Duration)
		} else {
			s.logger.Error("job failed", "job", name, "trigger", trigger, "duration", result.Duration, "error", result.Error)
		}
	}()

	if err := e.job.Run(ctx); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (s *Scheduler) record(e *entry, result JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := result
	e.last = &r

	s.history = append(s.history, result)
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = s.history[over:]
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// ListJobs returns the registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		info := JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule,
		}
		if s.running {
			if next, err := e.handle.NextRun(); err == nil && !next.IsZero() {
				info.NextRun = &next
			}
		}
		if e.last != nil {
			last := *e.last
			info.LastResult = &last
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// History returns the most recent results, newest last.
func (s *Scheduler) History() []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobResult, len(s.history))
	copy(out, s.history)
	return out
}
