package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var out map[string]int
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Equal(t, 1, out["a"])

	assert.ErrorIs(t, c.Get(ctx, "missing", &out), ErrCacheMiss)
	assert.ErrorIs(t, c.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
}

func TestCache_DeleteByPattern(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, StudentKey("1"), 1, 0))
	require.NoError(t, c.Set(ctx, StudentKey("2"), 2, 0))
	require.NoError(t, c.Set(ctx, "other", 3, 0))

	require.NoError(t, c.DeleteByPattern(ctx, PrefixStudent+"*"))
	assert.False(t, mr.Exists(StudentKey("1")))
	assert.False(t, mr.Exists(StudentKey("2")))
	assert.True(t, mr.Exists("other"))
}

func TestConfig_Options(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache:6380/2"}.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts, err = DefaultConfig().Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Config{URL: "http://nope"}.Options()
	assert.Error(t, err)
}

func TestStudentCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	sc := NewStudentCache(c, time.Minute)
	ctx := context.Background()

	got, err := sc.GetStudent(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	last := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := &student.Student{
		ID:            "s-1",
		Name:          "Ada",
		Handle:        "ada",
		CurrentRating: 1500,
		LastActivity:  &last,
		Contests:      []student.Contest{{ContestID: 1, NewRating: 1500}},
	}
	require.NoError(t, sc.SetStudent(ctx, s, 0))
	assert.Equal(t, time.Minute, mr.TTL(StudentKey("s-1")))

	got, err = sc.GetStudent(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, student.Handle("ada"), got.Handle)
	assert.Equal(t, 1500, got.CurrentRating)
	assert.True(t, last.Equal(*got.LastActivity))
	assert.Len(t, got.Contests, 1)

	require.NoError(t, sc.InvalidateStudent(ctx, "s-1"))
	got, err = sc.GetStudent(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStudentCache_DropsWriteAfterInvalidation(t *testing.T) {
	c, mr := newTestCache(t)
	sc := NewStudentCache(c, time.Minute)
	ctx := context.Background()

	stale := &student.Student{ID: "s-1", Name: "Ada", Handle: "ada"}
	before, err := sc.Version(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), before)

	require.NoError(t, sc.InvalidateStudent(ctx, "s-1"))
	require.NoError(t, sc.SetStudent(ctx, stale, before))
	assert.False(t, mr.Exists(StudentKey("s-1")))

	after, err := sc.Version(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), after)
	assert.True(t, mr.TTL(StudentVersionKey("s-1")) > 0)

	fresh := &student.Student{ID: "s-1", Name: "Ada L.", Handle: "ada"}
	require.NoError(t, sc.SetStudent(ctx, fresh, after))
	got, err := sc.GetStudent(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada L.", got.Name)
	assert.Equal(t, time.Minute, mr.TTL(StudentKey("s-1")))
}

func TestSyncLock_ExclusiveUntilReleased(t *testing.T) {
	c, mr := newTestCache(t)
	lock := NewSyncLock(c, nil)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, "s-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(LockKey("s-1")))

	_, ok, err = lock.Acquire(ctx, "s-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = lock.Acquire(ctx, "s-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other students are not blocked")

	release()
	_, ok, err = lock.Acquire(ctx, "s-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncLock_StaleReleaseKeepsNewHolder(t *testing.T) {
	c, mr := newTestCache(t)
	lock := NewSyncLock(c, nil)
	ctx := context.Background()

	staleRelease, ok, err := lock.Acquire(ctx, "s-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = lock.Acquire(ctx, "s-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease()
	assert.True(t, mr.Exists(LockKey("s-1")))
}
