package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// TTLSyncLock is the default upper bound for holding a student's sync lock.
const TTLSyncLock = 2 * time.Minute

// SyncLock implements student.SyncLock with SET NX PX. Each holder writes a
// random token; release deletes the key only while it still holds that token,
// so an expired lock taken over by another process is never removed.
type SyncLock struct {
	cache  *Cache
	logger *slog.Logger
}

// NewSyncLock creates a SyncLock.
func NewSyncLock(cache *Cache, logger *slog.Logger) *SyncLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncLock{cache: cache, logger: logger.With("component", "sync_lock")}
}

var _ student.SyncLock = (*SyncLock)(nil)

// Acquire implements student.SyncLock.
func (l *SyncLock) Acquire(ctx context.Context, studentID string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = TTLSyncLock
	}

	key := LockKey(studentID)
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("redis: acquire sync lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The caller's context may already be cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		if _, err := l.cache.DeleteIfEquals(rctx, key, token); err != nil {
			l.logger.Warn("failed to release sync lock", "student_id", studentID, "error", err)
		}
	}
	return release, true, nil
}
