package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

const (
	// TTLStudentCache is the default TTL for cached student records.
	TTLStudentCache = 10 * time.Minute

	// ttlStudentVersion must outlast any single load from the database.
	ttlStudentVersion = 24 * time.Hour
)

// setIfVersion stores KEYS[1] only while the counter at KEYS[2] still
// equals ARGV[2]. A missing counter counts as zero.
var setIfVersion = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if (v or '0') ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// StudentCache implements student.Cache on top of Cache.
type StudentCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStudentCache creates a new StudentCache. A non-positive ttl uses
// TTLStudentCache.
func NewStudentCache(cache *Cache, ttl time.Duration) *StudentCache {
	if ttl <= 0 {
		ttl = TTLStudentCache
	}
	return &StudentCache{cache: cache, ttl: ttl}
}

var _ student.Cache = (*StudentCache)(nil)

// GetStudent returns the cached student, or nil without error on a miss.
func (s *StudentCache) GetStudent(ctx context.Context, id string) (*student.Student, error) {
	var st student.Student
	if err := s.cache.Get(ctx, StudentKey(id), &st); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// Version returns the student's invalidation counter, zero if it was
// never invalidated or the counter expired.
func (s *StudentCache) Version(ctx context.Context, id string) (int64, error) {
	v, err := s.cache.Client().Get(ctx, StudentVersionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetStudent caches a full student record unless it was invalidated after
// version was read. A dropped write is not an error.
func (s *StudentCache) SetStudent(ctx context.Context, st *student.Student, version int64) error {
	if st == nil {
		return nil
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	keys := []string{StudentKey(st.ID), StudentVersionKey(st.ID)}
	return setIfVersion.Run(ctx, s.cache.Client(), keys,
		data, strconv.FormatInt(version, 10), s.ttl.Milliseconds(),
	).Err()
}

// InvalidateStudent drops a cached student and bumps its counter so that
// loads started before this call cannot write the old record back.
func (s *StudentCache) InvalidateStudent(ctx context.Context, id string) error {
	_, err := s.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, StudentVersionKey(id))
		pipe.Expire(ctx, StudentVersionKey(id), ttlStudentVersion)
		pipe.Del(ctx, StudentKey(id))
		return nil
	})
	return err
}

// InvalidateAll clears every cached student.
func (s *StudentCache) InvalidateAll(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixStudent+"*")
}
