package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/drivetheory/theory-hub/internal/domain/practice"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// SessionRepository implements practice.SessionRepository.
type SessionRepository struct {
	q querier
}

const sessionColumns = `
	id, student_id, client_session_id, title, session_type, category_id,
	total_questions, correct_answers, accuracy_percentage, time_spent_seconds,
	duration_minutes, status, verdict, points_earned, feedback, results,
	achievements, started_at, completed_at
`

// Record inserts the write-once session row.
func (r *SessionRepository) Record(ctx context.Context, s *practice.Session) error {
	results, err := json.Marshal(s.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	achievements, err := json.Marshal(s.Achievements)
	if err != nil {
		return fmt.Errorf("failed to marshal achievements: %w", err)
	}

	var (
		clientSessionID sql.NullString
		categoryID      sql.NullInt64
	)
	if s.ClientSessionID != "" {
		clientSessionID = sql.NullString{String: s.ClientSessionID, Valid: true}
	}
	if !s.Category.IsMixed() {
		categoryID = sql.NullInt64{Int64: s.Category.Int64(), Valid: true}
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO practice_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.StudentID.String(),
		clientSessionID,
		s.Title,
		s.SessionType,
		categoryID,
		s.TotalQuestions,
		s.CorrectAnswers,
		s.Accuracy,
		s.TimeSpentSeconds,
		s.DurationMinutes,
		s.Status,
		string(s.Verdict),
		s.PointsEarned,
		s.Feedback,
		string(results),
		string(achievements),
		formatTime(s.StartedAt),
		formatTime(s.CompletedAt),
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
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM practice_sessions
		WHERE student_id = ? AND client_session_id = ?
	`, studentID.String(), clientSessionID)

	s, err := scanSession(row)
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
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM practice_sessions
		WHERE student_id = ?
		ORDER BY completed_at DESC, id
		LIMIT ?
	`, studentID.String(), limit)
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

func scanSession(row scanner) (*practice.Session, error) {
	var (
		s               practice.Session
		studentID       string
		clientSessionID sql.NullString
		categoryID      sql.NullInt64
		verdict         string
		results         string
		achievements    string
		startedAt       string
		completedAt     string
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
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.StudentID = shared.StudentID(studentID)
	s.ClientSessionID = clientSessionID.String
	s.Verdict = practice.Verdict(verdict)
	if categoryID.Valid {
		s.Category = shared.CategoryID(categoryID.Int64)
	}
	if err := json.Unmarshal([]byte(results), &s.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	if err := json.Unmarshal([]byte(achievements), &s.Achievements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal achievements: %w", err)
	}
	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if s.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
