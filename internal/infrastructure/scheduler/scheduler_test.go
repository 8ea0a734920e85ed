package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name  string
	runs  atomic.Int32
	err   error
	panic bool
	block chan struct{}
	start chan struct{}
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job" }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.start != nil {
		close(j.start)
	}
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if j.panic {
		panic("boom")
	}
	return j.err
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(Config{})
	require.NoError(t, err)
	return s
}

func TestRegister_Validation(t *testing.T) {
	s := newTestScheduler(t)

	assert.ErrorIs(t, s.Register(nil, "0 2 * * *"), ErrNilJob)
	require.NoError(t, s.Register(&fakeJob{name: "a"}, "0 2 * * *"))
	assert.ErrorIs(t, s.Register(&fakeJob{name: "a"}, "0 3 * * *"), ErrJobAlreadyExists)
	assert.Error(t, s.Register(&fakeJob{name: "b"}, "not a cron"))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "0 2 * * *", jobs[0].Schedule)
}

func TestRunNow_RecordsResult(t *testing.T) {
	s := newTestScheduler(t)
	ok := &fakeJob{name: "ok"}
	bad := &fakeJob{name: "bad", err: errors.New("remote down")}
	require.NoError(t, s.Register(ok, "0 2 * * *"))
	require.NoError(t, s.Register(bad, "0 2 * * *"))

	result, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "manual", result.Trigger)
	assert.Equal(t, int32(1), ok.runs.Load())

	result, err = s.RunNow(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "remote down", result.Error)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "ok", history[0].JobName)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	require.NotNil(t, jobs[0].LastResult)
	assert.False(t, jobs[0].LastResult.Success, "bad sorts first")
}

func TestRunNow_RecoversPanic(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register(&fakeJob{name: "p", panic: true}, "0 2 * * *"))

	result, err := s.RunNow(context.Background(), "p")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "boom")
}

func TestRunNow_RefusesOverlap(t *testing.T) {
	s := newTestScheduler(t)
	job := &fakeJob{name: "slow", block: make(chan struct{}), start: make(chan struct{})}
	require.NoError(t, s.Register(job, "0 2 * * *"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunNow(context.Background(), "slow")
	}()
	<-job.start

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	<-done
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestHistory_Bounded(t *testing.T) {
	s, err := NewScheduler(Config{MaxHistorySize: 2})
	require.NoError(t, err)
	require.NoError(t, s.Register(&fakeJob{name: "j"}, "0 2 * * *"))

	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "j")
		require.NoError(t, err)
	}
	assert.Len(t, s.History(), 2)
}

func TestStartStop_NextRunInLocation(t *testing.T) {
	// gocron passes the zone name to the cron parser, so it must be an IANA name.
	loc, err := time.LoadLocation("Asia/Tashkent")
	require.NoError(t, err)
	s, err := NewScheduler(Config{Location: loc})
	require.NoError(t, err)
	require.NoError(t, s.Register(&fakeJob{name: "daily"}, "0 2 * * *"))

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	var next *time.Time
	require.Eventually(t, func() bool {
		next = s.ListJobs()[0].NextRun
		return next != nil
	}, time.Second, 10*time.Millisecond)

	local := next.In(loc)
	assert.Equal(t, 2, local.Hour())
	assert.Equal(t, 0, local.Minute())
	assert.True(t, next.After(time.Now()))

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}
