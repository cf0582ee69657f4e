package practice

import (
	"context"

	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// ErrSessionNotFound is returned when no session matches a lookup.
var ErrSessionNotFound = shared.NewDomainError("practice", "Find", shared.ErrNotFound, "practice session not found")

// SessionRepository persists practice session records.
type SessionRepository interface {
	// Record inserts the session. It returns shared.ErrDuplicateSession when the
	// (student, client session id) pair is already recorded.
	Record(ctx context.Context, s *Session) error

	// FindByClientSessionID returns ErrSessionNotFound when absent.
	FindByClientSessionID(ctx context.Context, studentID shared.StudentID, clientSessionID string) (*Session, error)

	// ListRecent returns the newest sessions first.
	ListRecent(ctx context.Context, studentID shared.StudentID, limit int) ([]*Session, error)
}
