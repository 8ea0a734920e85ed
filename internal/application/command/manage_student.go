package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT MANAGEMENT COMMANDS
// Create, update and delete student records.
// ══════════════════════════════════════════════════════════════════════════════

// CreateStudentCommand registers a new student.
type CreateStudentCommand struct {
	Name          string
	Email         string
	Phone         string
	Handle        string
	EmailDisabled bool
}

// UpdateStudentCommand changes profile fields; nil fields are left as is.
type UpdateStudentCommand struct {
	StudentID string
	Details   student.UpdateDetails
}

// DeleteStudentCommand removes a student.
type DeleteStudentCommand struct {
	StudentID string
}

// StudentWriteResult is returned by create and update.
type StudentWriteResult struct {
	Student *student.Student

	// SyncWarning is set when the Codeforces sync failed; the record was
	// still saved without fresh data.
	SyncWarning string

	// Reminded is set when the post-create inactivity check sent a reminder.
	Reminded bool
}

// ManageStudentHandler handles create, update and delete.
type ManageStudentHandler struct {
	repo       student.Repository
	syncer     *Syncer
	lock       student.SyncLock
	inactivity *CheckInactivityHandler
	cache      student.Cache
	clock      timeutil.Clock
	logger     *slog.Logger
}

// NewManageStudentHandler creates a new ManageStudentHandler.
func NewManageStudentHandler(
	repo student.Repository,
	syncer *Syncer,
	lock student.SyncLock,
	inactivity *CheckInactivityHandler,
	cache student.Cache,
	clock timeutil.Clock,
	logger *slog.Logger,
) *ManageStudentHandler {
	if lock == nil {
		lock = NewLocalSyncLock()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ManageStudentHandler{
		repo:       repo,
		syncer:     syncer,
		lock:       lock,
		inactivity: inactivity,
		cache:      cache,
		clock:      clock,
		logger:     logger.With("handler", "manage_student"),
	}
}

// Create validates, rejects duplicates, syncs (a failure is only a warning),
// saves and finally runs the inactivity check for the new student.
func (h *ManageStudentHandler) Create(ctx context.Context, cmd CreateStudentCommand) (*StudentWriteResult, error) {
	s, err := student.NewStudent(student.NewStudentParams{
		ID:            uuid.NewString(),
		Name:          cmd.Name,
		Email:         cmd.Email,
		Phone:         cmd.Phone,
		Handle:        cmd.Handle,
		EmailDisabled: cmd.EmailDisabled,
	}, h.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := h.ensureUnique(ctx, s, ""); err != nil {
		return nil, err
	}

	result := &StudentWriteResult{Student: s}
	result.SyncWarning = h.trySync(ctx, s)

	if err := h.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create_student: %w", err)
	}

	if h.inactivity != nil {
		check, err := h.inactivity.Handle(ctx, CheckInactivityCommand{StudentID: s.ID})
		if err != nil {
			h.logger.Warn("post-create inactivity check failed", "student_id", s.ID, "error", err)
		} else if check.Notified > 0 {
			result.Reminded = true
			s.RemindersSent += check.Notified
		}
	}

	h.logger.Info("student created", "student_id", s.ID, "handle", s.Handle.String())
	return result, nil
}

// Update applies profile changes and resyncs when the handle changed.
func (h *ManageStudentHandler) Update(ctx context.Context, cmd UpdateStudentCommand) (*StudentWriteResult, error) {
	s, err := h.repo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, err
	}

	handleChanged, err := s.ApplyDetails(cmd.Details, h.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := h.ensureUnique(ctx, s, s.ID); err != nil {
		return nil, err
	}

	result := &StudentWriteResult{Student: s}
	if handleChanged {
		result.SyncWarning = h.trySync(ctx, s)
	}

	if err := h.repo.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("update_student: %w", err)
	}
	invalidate(ctx, h.cache, h.logger, s.ID)

	h.logger.Info("student updated",
		"student_id", s.ID,
		"handle_changed", handleChanged,
	)
	return result, nil
}

// Delete removes a student.
func (h *ManageStudentHandler) Delete(ctx context.Context, cmd DeleteStudentCommand) error {
	if err := h.repo.Delete(ctx, cmd.StudentID); err != nil {
		return err
	}
	invalidate(ctx, h.cache, h.logger, cmd.StudentID)
	h.logger.Info("student deleted", "student_id", cmd.StudentID)
	return nil
}

// ensureUnique rejects a second student with the same email or handle.
func (h *ManageStudentHandler) ensureUnique(ctx context.Context, s *student.Student, excludeID string) error {
	_, err := h.repo.FindConflicting(ctx, s.Email, s.Handle, excludeID)
	switch {
	case err == nil:
		return student.ErrStudentAlreadyExists
	case shared.IsNotFound(err):
		return nil
	default:
		return fmt.Errorf("check duplicates: %w", err)
	}
}

// trySync syncs s in memory and turns a failure into a warning message.
func (h *ManageStudentHandler) trySync(ctx context.Context, s *student.Student) string {
	release, ok, err := h.lock.Acquire(ctx, s.ID, DefaultSyncLockTTL)
	if err != nil || !ok {
		if err == nil {
			err = ErrSyncInProgress
		}
		h.logger.Warn("codeforces sync skipped", "student_id", s.ID, "error", err)
		return shared.UserMessage(err)
	}
	defer release()

	if _, err := h.syncer.Sync(ctx, s); err != nil {
		h.logger.Warn("codeforces sync failed, saving without fresh data",
			"student_id", s.ID,
			"handle", s.Handle.String(),
			"error", err,
		)
		return shared.UserMessage(err)
	}
	return ""
}
