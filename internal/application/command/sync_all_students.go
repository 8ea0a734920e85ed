package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC ALL STUDENTS COMMAND
// Best-effort sequential batch: one student at a time, a fixed pause between
// students, failures logged and skipped.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultStudentDelay is the pause between two students in a batch.
const DefaultStudentDelay = 2 * time.Second

// SyncAllStudentsCommand triggers a full sync.
type SyncAllStudentsCommand struct{}

// SyncFailure records one student whose sync failed.
type SyncFailure struct {
	StudentID string `json:"studentId"`
	Handle    string `json:"cfHandle"`
	Error     string `json:"error"`
}

// SyncAllStudentsResult summarizes a batch.
type SyncAllStudentsResult struct {
	Total    int           `json:"total"`
	Synced   int           `json:"synced"`
	Failed   int           `json:"failed"`
	Failures []SyncFailure `json:"failures,omitempty"`

	// Interrupted is set when the process shut down mid-batch.
	Interrupted bool          `json:"interrupted,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// SyncAllStudentsHandler handles the SyncAllStudentsCommand.
type SyncAllStudentsHandler struct {
	repo         student.Repository
	syncStudent  *SyncStudentHandler
	studentDelay time.Duration
	logger       *slog.Logger
}

// NewSyncAllStudentsHandler creates a new SyncAllStudentsHandler.
func NewSyncAllStudentsHandler(
	repo student.Repository,
	syncStudent *SyncStudentHandler,
	studentDelay time.Duration,
	logger *slog.Logger,
) *SyncAllStudentsHandler {
	if studentDelay < 0 {
		studentDelay = DefaultStudentDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncAllStudentsHandler{
		repo:         repo,
		syncStudent:  syncStudent,
		studentDelay: studentDelay,
		logger:       logger.With("handler", "sync_all_students"),
	}
}

// Handle runs the batch. Only a failure to list students is returned as an
// error; per-student failures are reported in the result.
func (h *SyncAllStudentsHandler) Handle(ctx context.Context, _ SyncAllStudentsCommand) (*SyncAllStudentsResult, error) {
	start := time.Now()

	students, err := h.repo.List(ctx, student.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("sync_all_students: list: %w", err)
	}

	result := &SyncAllStudentsResult{Total: len(students)}
	h.logger.Info("starting sync of all students", "total", result.Total)

	for i, s := range students {
		if i > 0 && !timeutil.Sleep(ctx.Done(), h.studentDelay) {
			result.Interrupted = true
			break
		}

		if _, _, err := h.syncStudent.SyncAndSave(ctx, s.ID); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, SyncFailure{
				StudentID: s.ID,
				Handle:    s.Handle.String(),
				Error:     shared.UserMessage(err),
			})
			h.logger.Warn("failed to sync student",
				"student_id", s.ID,
				"handle", s.Handle.String(),
				"error", err,
			)
			continue
		}
		result.Synced++
	}

	result.Duration = time.Since(start)
	h.logger.Info("sync of all students completed",
		"total", result.Total,
		"synced", result.Synced,
		"failed", result.Failed,
		"interrupted", result.Interrupted,
		"duration", result.Duration,
	)

	return result, nil
}
