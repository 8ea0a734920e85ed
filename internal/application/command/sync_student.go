package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC STUDENT COMMAND
// Loads one student, syncs it with Codeforces and saves the result.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSyncLockTTL bounds how long a crashed sync can hold a student.
const DefaultSyncLockTTL = 2 * time.Minute

// ErrSyncInProgress is returned when the same student is already being synced.
var ErrSyncInProgress = shared.NewDomainError("sync", "Lock", shared.ErrConcurrentModification,
	"Sync already in progress for this student")

// SyncStudentCommand contains the data needed to sync a student.
type SyncStudentCommand struct {
	StudentID string
}

// Validate validates the command.
func (c SyncStudentCommand) Validate() error {
	if c.StudentID == "" {
		return shared.NewDomainError("sync", "Validate", shared.ErrInvalidID, "student id is required")
	}
	return nil
}

// SyncStudentResult contains the result of synchronization.
type SyncStudentResult struct {
	Student *student.Student
	Outcome SyncOutcome
}

// SyncStudentHandler handles the SyncStudentCommand.
type SyncStudentHandler struct {
	repo    student.Repository
	syncer  *Syncer
	lock    student.SyncLock
	cache   student.Cache
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewSyncStudentHandler creates a new SyncStudentHandler.
// lock and cache are optional: without a lock an in-process one is used.
func NewSyncStudentHandler(
	repo student.Repository,
	syncer *Syncer,
	lock student.SyncLock,
	cache student.Cache,
	lockTTL time.Duration,
	logger *slog.Logger,
) *SyncStudentHandler {
	if lock == nil {
		lock = NewLocalSyncLock()
	}
	if lockTTL <= 0 {
		lockTTL = DefaultSyncLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncStudentHandler{
		repo:    repo,
		syncer:  syncer,
		lock:    lock,
		cache:   cache,
		lockTTL: lockTTL,
		logger:  logger.With("handler", "sync_student"),
	}
}

// Handle executes the sync student command.
func (h *SyncStudentHandler) Handle(ctx context.Context, cmd SyncStudentCommand) (*SyncStudentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s, outcome, err := h.SyncAndSave(ctx, cmd.StudentID)
	if err != nil {
		return nil, err
	}

	return &SyncStudentResult{Student: s, Outcome: outcome}, nil
}

// SyncAndSave takes the per-student lock, loads the current record, syncs it
// and stores only the sync-owned fields. Nothing is saved when the sync fails.
func (h *SyncStudentHandler) SyncAndSave(ctx context.Context, studentID string) (*student.Student, SyncOutcome, error) {
	release, ok, err := h.lock.Acquire(ctx, studentID, h.lockTTL)
	if err != nil {
		return nil, SyncOutcome{}, fmt.Errorf("sync_student: acquire lock: %w", err)
	}
	if !ok {
		return nil, SyncOutcome{}, ErrSyncInProgress
	}
	defer release()

	// Reloaded under the lock: a batch may reach this student long after it
	// was listed, and the profile can change in between.
	s, err := h.repo.GetByID(ctx, studentID)
	if err != nil {
		return nil, SyncOutcome{}, fmt.Errorf("sync_student: %w", err)
	}

	start := time.Now()
	outcome, err := h.syncer.Sync(ctx, s)
	if err != nil {
		return nil, outcome, err
	}

	if err := h.repo.SaveSyncResult(ctx, s); err != nil {
		return nil, outcome, fmt.Errorf("sync_student: save: %w", err)
	}
	invalidate(ctx, h.cache, h.logger, s.ID)

	h.logger.Info("student synced",
		"student_id", s.ID,
		"handle", s.Handle.String(),
		"contests", outcome.Contests,
		"submissions", outcome.Submissions,
		"current_rating", s.CurrentRating,
		"duration", time.Since(start),
	)

	return s, outcome, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL SYNC LOCK
// ══════════════════════════════════════════════════════════════════════════════

// LocalSyncLock is an in-process student.SyncLock used when Redis is disabled.
type LocalSyncLock struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewLocalSyncLock creates an empty LocalSyncLock.
func NewLocalSyncLock() *LocalSyncLock {
	return &LocalSyncLock{active: make(map[string]struct{})}
}

// Acquire implements student.SyncLock. The TTL is ignored: the lock lives
// until release is called.
func (l *LocalSyncLock) Acquire(_ context.Context, studentID string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.active[studentID]; busy {
		return nil, false, nil
	}
	l.active[studentID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, studentID)
			l.mu.Unlock()
		})
	}, true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// invalidate drops a cached student; cache errors are logged, never returned.
func invalidate(ctx context.Context, cache student.Cache, logger *slog.Logger, id string) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateStudent(ctx, id); err != nil {
		logger.Warn("cache invalidation failed", "student_id", id, "error", err)
	}
}

// IsSyncInProgress checks whether err means a concurrent sync was refused.
func IsSyncInProgress(err error) bool {
	return errors.Is(err, ErrSyncInProgress)
}
