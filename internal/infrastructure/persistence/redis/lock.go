package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/retry"
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lease never releases a lock another holder has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockHeld = errors.New("redis: lock held by another submission")

// StudentLocker implements port.StudentLocker with SET NX PX leases.
type StudentLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

var _ port.StudentLocker = (*StudentLocker)(nil)

// NewStudentLocker creates a locker. ttl is the lease length; wait bounds how
// long Acquire retries a held lock.
func NewStudentLocker(cache *Cache, ttl, wait time.Duration) *StudentLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &StudentLocker{client: cache.Client(), ttl: ttl, wait: wait}
}

// Acquire takes the student's lease, retrying with backoff while it is held.
func (l *StudentLocker) Acquire(ctx context.Context, studentID shared.StudentID) (port.Unlock, error) {
	key := LockKey(studentID.String())
	token := uuid.NewString()

	err := retry.Do(ctx, retry.LockConfig(l.wait), func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return retry.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errLockHeld) {
			return nil, shared.ErrLockTimeout
		}
		return nil, fmt.Errorf("redis: acquire %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis: release %s: %w", key, err)
		}
		return nil
	}, nil
}
