// Package jobs contains the scheduled jobs of the tracker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alem-hub/cf-progress-tracker/internal/application/command"
)

// DailySyncJobName is the registered name of the daily pipeline.
const DailySyncJobName = "daily_sync"

// PipelineRunner runs the full sync-then-remind pipeline.
type PipelineRunner interface {
	Handle(ctx context.Context, cmd command.RunPipelineCommand) (*command.RunPipelineResult, error)
}

// DailySyncJob syncs every student and then runs the inactivity sweep.
type DailySyncJob struct {
	pipeline PipelineRunner
	trigger  string
	logger   *slog.Logger

	last atomic.Pointer[command.RunPipelineResult]
}

// NewDailySyncJob creates the job. trigger is recorded on every pipeline run
// it starts ("schedule" for the cron entry).
func NewDailySyncJob(pipeline PipelineRunner, trigger string, logger *slog.Logger) *DailySyncJob {
	if logger == nil {
		logger = slog.Default()
	}
	if trigger == "" {
		trigger = "schedule"
	}
	return &DailySyncJob{
		pipeline: pipeline,
		trigger:  trigger,
		logger:   logger.With("job", DailySyncJobName),
	}
}

// Name implements scheduler.Job.
func (j *DailySyncJob) Name() string { return DailySyncJobName }

// Description implements scheduler.Job.
func (j *DailySyncJob) Description() string {
	return "Sync all students from Codeforces, then remind inactive ones"
}

// Run implements scheduler.Job. Per-student failures do not fail the job;
// only a failure to run the pipeline at all does.
func (j *DailySyncJob) Run(ctx context.Context) error {
	result, err := j.pipeline.Handle(ctx, command.RunPipelineCommand{Trigger: j.trigger})
	if result != nil {
		j.last.Store(result)
	}
	if err != nil {
		return fmt.Errorf("daily sync: %w", err)
	}

	if result.Sync != nil && result.Sync.Interrupted {
		j.logger.Warn("daily sync interrupted by shutdown",
			"synced", result.Sync.Synced,
			"total", result.Sync.Total,
		)
	}
	return nil
}

// LastResult returns the outcome of the most recent run, or nil.
func (j *DailySyncJob) LastResult() *command.RunPipelineResult {
	return j.last.Load()
}
