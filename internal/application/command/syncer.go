// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system:
// syncing students with Codeforces, sending reminders and managing records.
package command

import (
	"context"
	"log/slog"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// ProfileFetcher reads a handle's public history from Codeforces.
type ProfileFetcher interface {
	// FetchRatingHistory returns rating changes in API order.
	FetchRatingHistory(ctx context.Context, handle string) ([]student.Contest, error)

	// FetchSubmissions returns up to count submissions starting at from (1-based).
	FetchSubmissions(ctx context.Context, handle string, from, count int) ([]student.Submission, error)
}

// DefaultSubmissionsCount is the user.status page size; large enough to
// cover a full history in one call.
const DefaultSubmissionsCount = 10000

// ══════════════════════════════════════════════════════════════════════════════
// SYNC ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Syncer pulls one student's history and applies it to the student in memory.
// It holds no lock and does not persist; callers save the result and must
// not sync the same student concurrently.
type Syncer struct {
	fetcher          ProfileFetcher
	clock            timeutil.Clock
	submissionsCount int
	logger           *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(fetcher ProfileFetcher, clock timeutil.Clock, submissionsCount int, logger *slog.Logger) *Syncer {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if submissionsCount <= 0 {
		submissionsCount = DefaultSubmissionsCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		fetcher:          fetcher,
		clock:            clock,
		submissionsCount: submissionsCount,
		logger:           logger.With("component", "syncer"),
	}
}

// SyncOutcome describes what a sync applied.
type SyncOutcome struct {
	Contests           int
	Submissions        int
	DroppedSubmissions int
}

// Sync fetches rating history, then submissions, replacing both sequences
// wholesale. An error from either fetch aborts the sync; changes applied
// before the failure stay on s but lastSynced is not touched.
func (sy *Syncer) Sync(ctx context.Context, s *student.Student) (SyncOutcome, error) {
	handle := s.Handle.String()

	contests, err := sy.fetcher.FetchRatingHistory(ctx, handle)
	if err != nil {
		return SyncOutcome{}, err
	}
	s.ReplaceContests(contests)

	submissions, err := sy.fetcher.FetchSubmissions(ctx, handle, 1, sy.submissionsCount)
	if err != nil {
		return SyncOutcome{Contests: len(contests)}, err
	}
	dropped := s.ReplaceSubmissions(submissions)

	s.MarkSynced(sy.clock.Now())

	if dropped > 0 {
		sy.logger.Debug("dropped submissions without problem",
			"student_id", s.ID,
			"handle", handle,
			"dropped", dropped,
		)
	}

	return SyncOutcome{
		Contests:           len(s.Contests),
		Submissions:        len(s.Submissions),
		DroppedSubmissions: dropped,
	}, nil
}
