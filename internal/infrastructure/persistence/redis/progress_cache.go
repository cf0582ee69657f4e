package redis

import (
	"context"
	"errors"
	"time"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// ProgressCache implements port.ProgressCache.
type ProgressCache struct {
	cache *Cache
}

var _ port.ProgressCache = (*ProgressCache)(nil)

// NewProgressCache creates a progress view cache.
func NewProgressCache(cache *Cache) *ProgressCache {
	return &ProgressCache{cache: cache}
}

// Get decodes the cached view into dest. A miss is (false, nil).
func (c *ProgressCache) Get(ctx context.Context, studentID shared.StudentID, dest any) (bool, error) {
	err := c.cache.Get(ctx, ProgressKey(studentID.String()), dest)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Set stores the view for ttl.
func (c *ProgressCache) Set(ctx context.Context, studentID shared.StudentID, view any, ttl time.Duration) error {
	return c.cache.Set(ctx, ProgressKey(studentID.String()), view, ttl)
}

// Invalidate drops the cached view.
func (c *ProgressCache) Invalidate(ctx context.Context, studentID shared.StudentID) error {
	return c.cache.Delete(ctx, ProgressKey(studentID.String()))
}
