package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/pkg/timeutil"
)

type fixture struct {
	repo     *memRepo
	fetcher  *fakeFetcher
	sender   *fakeSender
	clock    *timeutil.FixedClock
	syncer   *Syncer
	one      *SyncStudentHandler
	all      *SyncAllStudentsHandler
	inactive *CheckInactivityHandler
	pipeline *RunPipelineHandler
	manage   *ManageStudentHandler
}

func newFixture(students ...*student.Student) *fixture {
	f := &fixture{
		repo:    newMemRepo(students...),
		fetcher: newFakeFetcher(),
		sender:  &fakeSender{fail: map[string]bool{}},
		clock:   timeutil.NewFixedClock(testNow),
	}
	lock := NewLocalSyncLock()
	f.syncer = NewSyncer(f.fetcher, f.clock, 0, nil)
	f.one = NewSyncStudentHandler(f.repo, f.syncer, lock, nil, 0, nil)
	f.all = NewSyncAllStudentsHandler(f.repo, f.one, 0, nil)
	f.inactive = NewCheckInactivityHandler(f.repo, f.sender, student.DefaultInactivityPolicy(), f.clock, nil, nil)
	f.pipeline = NewRunPipelineHandler(f.all, f.inactive, nil)
	f.manage = NewManageStudentHandler(f.repo, f.syncer, lock, f.inactive, nil, f.clock, nil)
	return f
}

// ─────────────────────────────────────────────────────────────────────────────
// Syncer
// ─────────────────────────────────────────────────────────────────────────────

func TestSyncer_AppliesRatingsAndActivity(t *testing.T) {
	f := newFixture()
	s := mustStudent("s-1", "alice")
	f.fetcher.profiles["alice"] = fakeProfile{
		contests: []student.Contest{
			contest(1, 0, 1400, testNow.Add(-90*timeutil.Day)),
			contest(2, 1400, 1600, testNow.Add(-60*timeutil.Day)),
			contest(3, 1600, 1550, testNow.Add(-30*timeutil.Day)),
		},
		submissions: []student.Submission{
			submission(10, 1, "A", "OK", testNow.Add(-2*timeutil.Day)),
			submission(11, 1, "B", "WRONG_ANSWER", testNow.Add(-1*timeutil.Day)),
			{ID: 12, CreationTimeSeconds: testNow.Unix(), Verdict: "OK"},
		},
	}

	outcome, err := f.syncer.Sync(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1550, s.CurrentRating)
	assert.Equal(t, 1600, s.MaxRating)
	assert.Equal(t, 3, outcome.Contests)
	assert.Equal(t, 2, outcome.Submissions)
	assert.Equal(t, 1, outcome.DroppedSubmissions)
	require.NotNil(t, s.LastActivity)
	assert.Equal(t, testNow.Add(-1*timeutil.Day).Unix(), s.LastActivity.Unix())
	require.NotNil(t, s.LastSynced)
	assert.Equal(t, testNow, *s.LastSynced)
	assert.Equal(t, []string{"rating:alice", "status:alice"}, f.fetcher.calls)
}

func TestSyncer_EmptyHistoryKeepsRatings(t *testing.T) {
	f := newFixture()
	s := mustStudent("s-1", "alice")
	s.CurrentRating, s.MaxRating = 1500, 1700
	last := testNow.Add(-3 * timeutil.Day)
	s.LastActivity = &last
	f.fetcher.profiles["alice"] = fakeProfile{}

	_, err := f.syncer.Sync(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1500, s.CurrentRating)
	assert.Equal(t, 1700, s.MaxRating)
	assert.Empty(t, s.Contests)
	assert.Nil(t, s.LastActivity)
}

func TestSyncer_SubmissionFailureLeavesLastSynced(t *testing.T) {
	f := newFixture()
	s := mustStudent("s-1", "alice")
	f.fetcher.profiles["alice"] = fakeProfile{
		contests:  []student.Contest{contest(1, 0, 1400, testNow.Add(-timeutil.Day))},
		statusErr: errors.New("boom"),
	}

	_, err := f.syncer.Sync(context.Background(), s)
	require.Error(t, err)
	assert.Nil(t, s.LastSynced)
	assert.Equal(t, 1400, s.CurrentRating)
}

func TestSyncer_RatingFailureSkipsSubmissions(t *testing.T) {
	f := newFixture()
	s := mustStudent("s-1", "ghost")

	_, err := f.syncer.Sync(context.Background(), s)
	require.ErrorIs(t, err, errUnknownHandle)
	assert.Equal(t, []string{"rating:ghost"}, f.fetcher.calls)
}

// ─────────────────────────────────────────────────────────────────────────────
// SyncStudentHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestSyncStudent_IsIdempotent(t *testing.T) {
	s := mustStudent("s-1", "alice")
	f := newFixture(s)
	f.fetcher.profiles["alice"] = fakeProfile{
		contests:    []student.Contest{contest(1, 0, 1400, testNow.Add(-timeutil.Day))},
		submissions: []student.Submission{submission(1, 1, "A", "OK", testNow.Add(-timeutil.Day))},
	}
	ctx := context.Background()

	_, err := f.one.Handle(ctx, SyncStudentCommand{StudentID: "s-1"})
	require.NoError(t, err)
	first := f.repo.get("s-1")

	_, err = f.one.Handle(ctx, SyncStudentCommand{StudentID: "s-1"})
	require.NoError(t, err)
	second := f.repo.get("s-1")

	assert.Equal(t, first.Contests, second.Contests)
	assert.Equal(t, first.Submissions, second.Submissions)
	assert.Equal(t, first.CurrentRating, second.CurrentRating)
	assert.Equal(t, 2, f.repo.saves)
}

func TestSyncStudent_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.one.Handle(context.Background(), SyncStudentCommand{StudentID: "missing"})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestSyncStudent_FailureDoesNotSave(t *testing.T) {
	s := mustStudent("s-1", "ghost")
	f := newFixture(s)

	_, err := f.one.Handle(context.Background(), SyncStudentCommand{StudentID: "s-1"})
	require.Error(t, err)
	assert.Zero(t, f.repo.saves)
}

func TestSyncStudent_RefusesConcurrentSync(t *testing.T) {
	s := mustStudent("s-1", "alice")
	f := newFixture(s)
	f.fetcher.profiles["alice"] = fakeProfile{}

	lock := NewLocalSyncLock()
	release, ok, err := lock.Acquire(context.Background(), "s-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	h := NewSyncStudentHandler(f.repo, f.syncer, lock, nil, 0, nil)
	_, err = h.Handle(context.Background(), SyncStudentCommand{StudentID: "s-1"})
	require.Error(t, err)
	assert.True(t, IsSyncInProgress(err))
	assert.Empty(t, f.fetcher.calls)
}

func TestLocalSyncLock_ReleaseIsIdempotent(t *testing.T) {
	lock := NewLocalSyncLock()
	ctx := context.Background()

	release, ok, _ := lock.Acquire(ctx, "a", 0)
	require.True(t, ok)
	_, ok, _ = lock.Acquire(ctx, "a", 0)
	assert.False(t, ok)

	release()
	release()

	_, ok, _ = lock.Acquire(ctx, "a", 0)
	assert.True(t, ok)
}

// ─────────────────────────────────────────────────────────────────────────────
// SyncAllStudentsHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestSyncAll_ContinuesAfterFailure(t *testing.T) {
	f := newFixture(
		mustStudent("s-1", "alice"),
		mustStudent("s-2", "ghost"),
		mustStudent("s-3", "carol"),
	)
	f.fetcher.profiles["alice"] = fakeProfile{}
	f.fetcher.profiles["carol"] = fakeProfile{}

	result, err := f.all.Handle(context.Background(), SyncAllStudentsCommand{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "s-2", result.Failures[0].StudentID)
	assert.False(t, result.Interrupted)
	assert.NotNil(t, f.repo.get("s-3").LastSynced)
}

func TestSyncAll_ListFailure(t *testing.T) {
	f := newFixture()
	f.repo.listErr = errors.New("db down")

	_, err := f.all.Handle(context.Background(), SyncAllStudentsCommand{})
	require.Error(t, err)
}

func TestSyncAll_StopsWhenContextCancelled(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"), mustStudent("s-2", "bob"))
	f.fetcher.profiles["alice"] = fakeProfile{}
	f.fetcher.profiles["bob"] = fakeProfile{}
	h := NewSyncAllStudentsHandler(f.repo, f.one, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.Handle(ctx, SyncAllStudentsCommand{})
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Equal(t, 1, result.Synced)
	assert.Nil(t, f.repo.get("s-2").LastSynced)
}

func TestSyncAll_KeepsProfileEditsMadeDuringBatch(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"), mustStudent("s-2", "bob"))
	f.fetcher.profiles["alice"] = fakeProfile{}
	f.fetcher.profiles["bob"] = fakeProfile{
		contests: []student.Contest{contest(1, 0, 1500, testNow.Add(-timeutil.Day))},
	}

	optOut := true
	name := "Renamed"
	f.fetcher.onRating = func(handle string) {
		var details student.UpdateDetails
		switch handle {
		case "alice":
			// s-2 was already listed but not yet synced.
			details.EmailDisabled = &optOut
		case "bob":
			// s-2 is being synced right now.
			details.Name = &name
		default:
			return
		}
		_, err := f.manage.Update(context.Background(), UpdateStudentCommand{StudentID: "s-2", Details: details})
		require.NoError(t, err)
	}

	result, err := f.pipeline.Handle(context.Background(), RunPipelineCommand{Trigger: "manual"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sync.Synced)

	stored := f.repo.get("s-2")
	assert.True(t, stored.EmailDisabled, "opt-out must survive the sync")
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, 1500, stored.CurrentRating)
	assert.NotNil(t, stored.LastSynced)

	assert.NotContains(t, f.sender.sentTo, "bob@example.com")
	assert.Contains(t, f.sender.sentTo, "alice@example.com")
}

// ─────────────────────────────────────────────────────────────────────────────
// CheckInactivityHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestCheckInactivity_NotifiesAndIncrements(t *testing.T) {
	recent := testNow.Add(-2 * timeutil.Day)
	stale := testNow.Add(-10 * timeutil.Day)

	active := mustStudent("s-1", "active")
	active.LastActivity = &recent

	idle := mustStudent("s-2", "idle")
	idle.LastActivity = &stale

	never := mustStudent("s-3", "never")

	optedOut := mustStudent("s-4", "optout")
	optedOut.EmailDisabled = true

	exhausted := mustStudent("s-5", "spent")
	exhausted.RemindersSent = 3

	f := newFixture(active, idle, never, optedOut, exhausted)

	result, err := f.inactive.Handle(context.Background(), CheckInactivityCommand{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Candidates)
	assert.Equal(t, 2, result.Notified)
	assert.Zero(t, result.Failed)
	assert.ElementsMatch(t, []string{"idle@example.com", "never@example.com"}, f.sender.sentTo)
	assert.Equal(t, 1, f.repo.get("s-2").RemindersSent)
	assert.Equal(t, 1, f.repo.get("s-3").RemindersSent)
	assert.Equal(t, 3, f.repo.get("s-5").RemindersSent)
}

func TestCheckInactivity_FailedSendIsNotCounted(t *testing.T) {
	f := newFixture(mustStudent("s-1", "idle"))
	f.sender.fail["idle@example.com"] = true

	result, err := f.inactive.Handle(context.Background(), CheckInactivityCommand{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Candidates)
	assert.Zero(t, result.Notified)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, f.repo.get("s-1").RemindersSent)
}

func TestCheckInactivity_BudgetStopsReminders(t *testing.T) {
	f := newFixture(mustStudent("s-1", "idle"))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.inactive.Handle(ctx, CheckInactivityCommand{})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, f.repo.get("s-1").RemindersSent)
	assert.Len(t, f.sender.sentTo, 3)
}

func TestCheckInactivity_SingleStudent(t *testing.T) {
	f := newFixture(mustStudent("s-1", "idle"), mustStudent("s-2", "other"))

	result, err := f.inactive.Handle(context.Background(), CheckInactivityCommand{StudentID: "s-2"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Notified)
	assert.Equal(t, []string{"other@example.com"}, f.sender.sentTo)
}

func TestCheckInactivity_IncrementFailureStillCountsDelivery(t *testing.T) {
	f := newFixture(mustStudent("s-1", "idle"))
	f.repo.incrementErr = errors.New("db down")

	result, err := f.inactive.Handle(context.Background(), CheckInactivityCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
}

// ─────────────────────────────────────────────────────────────────────────────
// RunPipelineHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestRunPipeline_SyncThenRemind(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"), mustStudent("s-2", "ghost"))
	f.fetcher.profiles["alice"] = fakeProfile{
		submissions: []student.Submission{submission(1, 1, "A", "OK", testNow.Add(-timeutil.Day))},
	}

	result, err := f.pipeline.Handle(context.Background(), RunPipelineCommand{Trigger: "manual"})
	require.NoError(t, err)

	assert.Equal(t, "manual", result.Trigger)
	assert.Equal(t, 1, result.Sync.Synced)
	assert.Equal(t, 1, result.Sync.Failed)
	// alice became active through the sync, ghost never synced.
	assert.Equal(t, 1, result.Inactivity.Notified)
	assert.Equal(t, []string{"ghost@example.com"}, f.sender.sentTo)
}

func TestRunPipeline_RefusesOverlappingRun(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"))
	f.pipeline.running.Store(true)

	_, err := f.pipeline.Handle(context.Background(), RunPipelineCommand{Trigger: "manual"})
	assert.ErrorIs(t, err, ErrPipelineRunning)
	assert.Empty(t, f.fetcher.calls)

	f.pipeline.running.Store(false)
	_, err = f.pipeline.Handle(context.Background(), RunPipelineCommand{Trigger: "manual"})
	require.NoError(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// ManageStudentHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestCreateStudent_SyncFailureStillSaves(t *testing.T) {
	f := newFixture()

	result, err := f.manage.Create(context.Background(), CreateStudentCommand{
		Name:   "Ghost",
		Email:  "ghost@example.com",
		Phone:  "+1",
		Handle: "ghost",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.SyncWarning)
	stored := f.repo.get(result.Student.ID)
	require.NotNil(t, stored)
	assert.Nil(t, stored.LastSynced)
	// No activity, so the post-create check reminds right away.
	assert.True(t, result.Reminded)
	assert.Equal(t, 1, stored.RemindersSent)
}

func TestCreateStudent_SyncsActiveStudent(t *testing.T) {
	f := newFixture()
	f.fetcher.profiles["alice"] = fakeProfile{
		contests:    []student.Contest{contest(1, 0, 1450, testNow.Add(-timeutil.Day))},
		submissions: []student.Submission{submission(1, 1, "A", "OK", testNow.Add(-timeutil.Day))},
	}

	result, err := f.manage.Create(context.Background(), CreateStudentCommand{
		Name: "Alice", Email: "alice@example.com", Phone: "+1", Handle: "alice",
	})
	require.NoError(t, err)

	assert.Empty(t, result.SyncWarning)
	assert.False(t, result.Reminded)
	assert.Equal(t, 1450, f.repo.get(result.Student.ID).CurrentRating)
	assert.Empty(t, f.sender.sentTo)
}

func TestCreateStudent_Duplicate(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"))

	_, err := f.manage.Create(context.Background(), CreateStudentCommand{
		Name: "Other", Email: "other@example.com", Phone: "+1", Handle: "alice",
	})
	require.Error(t, err)
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Equal(t, "Student with this email or Codeforces handle already exists", shared.UserMessage(err))
	assert.Empty(t, f.fetcher.calls)
}

func TestCreateStudent_Invalid(t *testing.T) {
	f := newFixture()

	_, err := f.manage.Create(context.Background(), CreateStudentCommand{Name: "X", Email: "bad", Phone: "1", Handle: "x"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestUpdateStudent_HandleChangeResyncs(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"))
	f.fetcher.profiles["alice2"] = fakeProfile{
		contests: []student.Contest{contest(1, 0, 1900, testNow.Add(-timeutil.Day))},
	}
	handle := "alice2"

	result, err := f.manage.Update(context.Background(), UpdateStudentCommand{
		StudentID: "s-1",
		Details:   student.UpdateDetails{Handle: &handle},
	})
	require.NoError(t, err)

	assert.Empty(t, result.SyncWarning)
	stored := f.repo.get("s-1")
	assert.Equal(t, student.Handle("alice2"), stored.Handle)
	assert.Equal(t, 1900, stored.CurrentRating)
}

func TestUpdateStudent_NameOnlyDoesNotSync(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"))
	name := "Alice Renamed"

	_, err := f.manage.Update(context.Background(), UpdateStudentCommand{
		StudentID: "s-1",
		Details:   student.UpdateDetails{Name: &name},
	})
	require.NoError(t, err)

	assert.Empty(t, f.fetcher.calls)
	assert.Equal(t, "Alice Renamed", f.repo.get("s-1").Name)
}

func TestUpdateStudent_ConflictingEmail(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"), mustStudent("s-2", "bob"))
	email := "bob@example.com"

	_, err := f.manage.Update(context.Background(), UpdateStudentCommand{
		StudentID: "s-1",
		Details:   student.UpdateDetails{Email: &email},
	})
	require.Error(t, err)
	assert.True(t, shared.IsAlreadyExists(err))
}

func TestDeleteStudent(t *testing.T) {
	f := newFixture(mustStudent("s-1", "alice"))
	ctx := context.Background()

	require.NoError(t, f.manage.Delete(ctx, DeleteStudentCommand{StudentID: "s-1"}))
	assert.Nil(t, f.repo.get("s-1"))

	err := f.manage.Delete(ctx, DeleteStudentCommand{StudentID: "s-1"})
	assert.True(t, shared.IsNotFound(err))
}
