// Package port declares the infrastructure contracts the application layer
// depends on. Persistence, locking and caching adapters implement them.
package port

import (
	"context"
	"time"

	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/practice"
	"github.com/drivetheory/theory-hub/internal/domain/progress"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// Repositories groups the repositories that take part in a submission transaction.
type Repositories interface {
	Categories() progress.CategoryProgressRepository
	Points() progress.PointsRepository
	Unlocks() achievement.UnlockRepository
	Sessions() practice.SessionRepository
}

// UnitOfWork runs fn in one storage transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is a complete persistence backend.
type Store interface {
	Repositories
	UnitOfWork

	// QuestionStats is used outside the transaction. Each exposure is its own atomic upsert.
	QuestionStats() progress.QuestionStatsRepository
	Catalog() achievement.CatalogRepository

	Ping(ctx context.Context) error
	Close() error
}

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATION
// ══════════════════════════════════════════════════════════════════════════════

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// StudentLocker serializes submissions of one student.
type StudentLocker interface {
	// Acquire blocks until the lock is held, ctx is done, or the wait budget
	// is spent. A spent budget returns shared.ErrLockTimeout.
	Acquire(ctx context.Context, studentID shared.StudentID) (Unlock, error)
}

// ProgressCache stores rendered progress views per student.
type ProgressCache interface {
	// Get decodes the cached view into dest and reports whether it was present.
	Get(ctx context.Context, studentID shared.StudentID, dest any) (bool, error)
	Set(ctx context.Context, studentID shared.StudentID, view any, ttl time.Duration) error
	Invalidate(ctx context.Context, studentID shared.StudentID) error
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURES
// ══════════════════════════════════════════════════════════════════════════════

// Features exposes the per-student feature toggles the engine consults.
type Features interface {
	DedupeAchievements(studentID string) bool
	ConcurrentStats(studentID string) bool
	SpeedBonus(studentID string) bool
	ProgressCache(studentID string) bool
}

// AllFeatures enables every toggle.
type AllFeatures struct{}

func (AllFeatures) DedupeAchievements(string) bool { return true }
func (AllFeatures) ConcurrentStats(string) bool    { return true }
func (AllFeatures) SpeedBonus(string) bool         { return true }
func (AllFeatures) ProgressCache(string) bool      { return true }
