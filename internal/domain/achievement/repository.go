package achievement

import (
	"context"
	"time"

	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// Unlock is a student's grant of one achievement.
type Unlock struct {
	StudentID  shared.StudentID
	Code       string
	UnlockedAt time.Time
}

// UnlockRepository stores unlocks, at most one per (student, code).
type UnlockRepository interface {
	// Grant inserts the unlock and reports whether the row was newly created.
	Grant(ctx context.Context, studentID shared.StudentID, code string, at time.Time) (bool, error)
	ListUnlocks(ctx context.Context, studentID shared.StudentID) ([]Unlock, error)
}

// CatalogRepository mirrors the catalog into storage.
type CatalogRepository interface {
	SyncCatalog(ctx context.Context, defs []Definition) error
}
