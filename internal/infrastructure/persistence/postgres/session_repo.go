package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/drivetheory/theory-hub/internal/domain/practice"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRACTICE SESSION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository implements practice.SessionRepository.
type SessionRepository struct {
	q Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(q Querier) *SessionRepository {
	return &SessionRepository{q: q}
}

const sessionColumns = `
	id, student_id, client_session_id, title, session_type, category_id,
	total_questions, correct_answers, accuracy_percentage, time_spent_seconds,
	duration_minutes, status, verdict, points_earned, feedback, results,
	achievements, started_at, completed_at
`

// Record inserts the write-once session row.
func (r *SessionRepository) Record(ctx context.Context, s *practice.Session) error {
	query := `
		INSERT INTO practice_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	results, err := json.Marshal(s.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	achievements, err := json.Marshal(s.Achievements)
	if err != nil {
		return fmt.Errorf("failed to marshal achievements: %w", err)
	}

	_, err = r.q.Exec(ctx, query,
		s.ID,
		s.StudentID.String(),
		nullableText(s.ClientSessionID),
		s.Title,
		s.SessionType,
		nullableCategory(s.Category),
		s.TotalQuestions,
		s.CorrectAnswers,
		s.Accuracy,
		s.TimeSpentSeconds,
		s.DurationMinutes,
		s.Status,
		string(s.Verdict),
		s.PointsEarned,
		s.Feedback,
		results,
		achievements,
		s.StartedAt,
		s.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateSession
		}
		return fmt.Errorf("failed to record practice session: %w", err)
	}
	return nil
}

// FindByClientSessionID returns the session recorded for a client session id.
func (r *SessionRepository) FindByClientSessionID(ctx context.Context, studentID shared.StudentID, clientSessionID string) (*practice.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM practice_sessions
		WHERE student_id = $1 AND client_session_id = $2
	`

	s, err := scanSession(r.q.QueryRow(ctx, query, studentID.String(), clientSessionID))
	if err != nil {
		if IsNoRows(err) {
			return nil, practice.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find practice session: %w", err)
	}
	return s, nil
}

// ListRecent returns up to limit sessions, newest first.
func (r *SessionRepository) ListRecent(ctx context.Context, studentID shared.StudentID, limit int) ([]*practice.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT ` + sessionColumns + `
		FROM practice_sessions
		WHERE student_id = $1
		ORDER BY completed_at DESC, id
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, studentID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list practice sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*practice.Session, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan practice session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*practice.Session, error) {
	var (
		s               practice.Session
		studentID       string
		clientSessionID *string
		categoryID      *int64
		verdict         string
		results         []byte
		achievements    []byte
	)
	err := row.Scan(
		&s.ID,
		&studentID,
		&clientSessionID,
		&s.Title,
		&s.SessionType,
		&categoryID,
		&s.TotalQuestions,
		&s.CorrectAnswers,
		&s.Accuracy,
		&s.TimeSpentSeconds,
		&s.DurationMinutes,
		&s.Status,
		&verdict,
		&s.PointsEarned,
		&s.Feedback,
		&results,
		&achievements,
		&s.StartedAt,
		&s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	s.StudentID = shared.StudentID(studentID)
	s.Verdict = practice.Verdict(verdict)
	if clientSessionID != nil {
		s.ClientSessionID = *clientSessionID
	}
	if categoryID != nil {
		s.Category = shared.CategoryID(*categoryID)
	}
	if err := json.Unmarshal(results, &s.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	if err := json.Unmarshal(achievements, &s.Achievements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal achievements: %w", err)
	}
	return &s, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableCategory(c shared.CategoryID) *int64 {
	if c.IsMixed() {
		return nil
	}
	v := c.Int64()
	return &v
}
