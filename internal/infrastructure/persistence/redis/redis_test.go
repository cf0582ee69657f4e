package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	cfg := DefaultConfig()
	cfg.URL = url

	cache, err := NewCache(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "theory:progress:42", ProgressKey("42"))
	assert.Equal(t, "theory:lock:student:42", LockKey("42"))
}

func TestConfig_URLOverridesAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://:secret@cache.internal:6380/2"

	opts, err := cfg.options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)

	cfg.URL = "://bad"
	_, err = cfg.options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestProgressCache_RoundTripAndInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	pc := NewProgressCache(cache)
	sid := shared.StudentID("redis-test-" + uuid.NewString())

	var view map[string]int
	hit, err := pc.Get(ctx, sid, &view)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, pc.Set(ctx, sid, map[string]int{"totalPoints": 120}, time.Minute))
	hit, err = pc.Get(ctx, sid, &view)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 120, view["totalPoints"])

	require.NoError(t, pc.Invalidate(ctx, sid))
	hit, err = pc.Get(ctx, sid, &view)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStudentLocker_ExclusiveAndTimeout(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	sid := shared.StudentID("redis-test-" + uuid.NewString())

	locker := NewStudentLocker(cache, 5*time.Second, 100*time.Millisecond)

	unlock, err := locker.Acquire(ctx, sid)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, sid)
	assert.ErrorIs(t, err, shared.ErrLockTimeout)

	require.NoError(t, unlock(ctx))

	unlock, err = locker.Acquire(ctx, sid)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestStudentLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	sid := shared.StudentID("redis-test-" + uuid.NewString())

	short := NewStudentLocker(cache, 50*time.Millisecond, 50*time.Millisecond)
	staleUnlock, err := short.Acquire(ctx, sid)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	long := NewStudentLocker(cache, 5*time.Second, 50*time.Millisecond)
	unlock, err := long.Acquire(ctx, sid)
	require.NoError(t, err)

	require.NoError(t, staleUnlock(ctx))

	_, err = long.Acquire(ctx, sid)
	assert.ErrorIs(t, err, shared.ErrLockTimeout)
	require.NoError(t, unlock(ctx))
}
