package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN PIPELINE COMMAND
// The daily job: sync every student, then run the inactivity sweep.
// The manual "sync all" trigger runs the same pipeline.
// ══════════════════════════════════════════════════════════════════════════════

// ErrPipelineRunning is returned when a full run is already in progress in
// this process.
var ErrPipelineRunning = shared.NewDomainError("sync", "RunPipeline", shared.ErrConcurrentModification,
	"A full sync is already running")

// RunPipelineCommand triggers the full pipeline.
type RunPipelineCommand struct {
	// Trigger names who started the run ("schedule", "manual", "startup").
	Trigger string
}

// RunPipelineResult combines both stages.
type RunPipelineResult struct {
	Trigger    string                 `json:"trigger"`
	Sync       *SyncAllStudentsResult `json:"sync"`
	Inactivity *CheckInactivityResult `json:"inactivity"`
	StartedAt  time.Time              `json:"startedAt"`
	Duration   time.Duration          `json:"duration"`
}

// RunPipelineHandler handles the RunPipelineCommand.
type RunPipelineHandler struct {
	syncAll    *SyncAllStudentsHandler
	inactivity *CheckInactivityHandler
	logger     *slog.Logger

	running atomic.Bool
}

// NewRunPipelineHandler creates a new RunPipelineHandler.
func NewRunPipelineHandler(syncAll *SyncAllStudentsHandler, inactivity *CheckInactivityHandler, logger *slog.Logger) *RunPipelineHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunPipelineHandler{
		syncAll:    syncAll,
		inactivity: inactivity,
		logger:     logger.With("handler", "run_pipeline"),
	}
}

// Handle runs sync-all followed by the inactivity sweep. The sweep runs
// even when some students failed to sync.
func (h *RunPipelineHandler) Handle(ctx context.Context, cmd RunPipelineCommand) (*RunPipelineResult, error) {
	if !h.running.CompareAndSwap(false, true) {
		h.logger.Warn("pipeline already running, trigger ignored", "trigger", cmd.Trigger)
		return nil, ErrPipelineRunning
	}
	defer h.running.Store(false)

	result := &RunPipelineResult{Trigger: cmd.Trigger, StartedAt: time.Now()}

	syncResult, err := h.syncAll.Handle(ctx, SyncAllStudentsCommand{})
	if err != nil {
		return nil, fmt.Errorf("run_pipeline: %w", err)
	}
	result.Sync = syncResult

	inactivityResult, err := h.inactivity.Handle(ctx, CheckInactivityCommand{})
	if err != nil {
		return result, fmt.Errorf("run_pipeline: %w", err)
	}
	result.Inactivity = inactivityResult
	result.Duration = time.Since(result.StartedAt)

	h.logger.Info("pipeline completed",
		"trigger", cmd.Trigger,
		"synced", syncResult.Synced,
		"failed", syncResult.Failed,
		"reminded", inactivityResult.Notified,
		"duration", result.Duration,
	)

	return result, nil
}
