package progress

import (
	"context"

	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// QuestionStatsRepository applies per-question telemetry. Each call is an
// independent atomic upsert keyed by question id.
type QuestionStatsRepository interface {
	RecordExposure(ctx context.Context, e Exposure) error
	GetQuestionStat(ctx context.Context, id shared.QuestionID) (*QuestionStat, error)
}

// CategoryProgressRepository applies category mastery deltas atomically.
type CategoryProgressRepository interface {
	ApplyCategoryDelta(ctx context.Context, d CategoryDelta) (*CategoryProgress, error)
	ListCategoryProgress(ctx context.Context, studentID shared.StudentID) ([]CategoryProgress, error)
}

// PointsRepository applies the points and streak transition in one atomic
// upsert and returns the post-update row.
type PointsRepository interface {
	ApplyPointsDelta(ctx context.Context, d PointsDelta) (*UserPoints, error)
	// GetUserPoints returns ErrPointsNotFound for a student with no submissions.
	GetUserPoints(ctx context.Context, studentID shared.StudentID) (*UserPoints, error)
}

// ErrPointsNotFound is returned for a student with no points row.
var ErrPointsNotFound = shared.NewDomainError("progress", "FindPoints", shared.ErrNotFound, "no points recorded for student")

// ErrQuestionStatNotFound is returned for a question never shown.
var ErrQuestionStatNotFound = shared.NewDomainError("progress", "FindQuestionStat", shared.ErrNotFound, "no statistics for question")
