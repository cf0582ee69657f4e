package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/drivetheory/theory-hub/internal/domain/progress"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUESTION STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// QuestionStatsRepository implements progress.QuestionStatsRepository.
type QuestionStatsRepository struct {
	q Querier
}

// NewQuestionStatsRepository creates a new QuestionStatsRepository.
func NewQuestionStatsRepository(q Querier) *QuestionStatsRepository {
	return &QuestionStatsRepository{q: q}
}

// RecordExposure folds one answered occurrence into the question row.
// The mean uses the pre-increment times_shown of the same row version.
func (r *QuestionStatsRepository) RecordExposure(ctx context.Context, e progress.Exposure) error {
	query := `
		INSERT INTO question_stats (
			question_id, times_shown, times_correct, times_incorrect, average_time_spent, updated_at
		) VALUES ($1, 1, $2, $3, $4, $5)
		ON CONFLICT (question_id) DO UPDATE SET
			average_time_spent = (question_stats.average_time_spent * question_stats.times_shown + EXCLUDED.average_time_spent)
				/ (question_stats.times_shown + 1),
			times_shown = question_stats.times_shown + 1,
			times_correct = question_stats.times_correct + EXCLUDED.times_correct,
			times_incorrect = question_stats.times_incorrect + EXCLUDED.times_incorrect,
			updated_at = EXCLUDED.updated_at
	`

	correct, incorrect := 0, 1
	if e.Correct {
		correct, incorrect = 1, 0
	}

	_, err := r.q.Exec(ctx, query, e.QuestionID.Int64(), correct, incorrect, e.TimeSpentSeconds, e.At)
	if err != nil {
		return fmt.Errorf("failed to record exposure of question %d: %w", e.QuestionID, err)
	}
	return nil
}

// GetQuestionStat returns the telemetry row of a question.
func (r *QuestionStatsRepository) GetQuestionStat(ctx context.Context, id shared.QuestionID) (*progress.QuestionStat, error) {
	query := `
		SELECT question_id, times_shown, times_correct, times_incorrect, average_time_spent, updated_at
		FROM question_stats
		WHERE question_id = $1
	`

	var (
		s   progress.QuestionStat
		qid int64
	)
	err := r.q.QueryRow(ctx, query, id.Int64()).Scan(
		&qid, &s.TimesShown, &s.TimesCorrect, &s.TimesIncorrect, &s.AverageTimeSpentSeconds, &s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.ErrQuestionStatNotFound
		}
		return nil, fmt.Errorf("failed to get question stat: %w", err)
	}
	s.QuestionID = shared.QuestionID(qid)
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY MASTERY
// ══════════════════════════════════════════════════════════════════════════════

// CategoryProgressRepository implements progress.CategoryProgressRepository.
type CategoryProgressRepository struct {
	q Querier
}

// NewCategoryProgressRepository creates a new CategoryProgressRepository.
func NewCategoryProgressRepository(q Querier) *CategoryProgressRepository {
	return &CategoryProgressRepository{q: q}
}

var readyThreshold = strconv.FormatFloat(progress.ReadyThreshold, 'f', -1, 64)

const categoryColumns = `
	student_id, category_id, questions_attempted, questions_correct, accuracy_percentage,
	is_ready_for_test, last_practice_date, total_practice_time_seconds
`

// ApplyCategoryDelta adds the submission to the category totals and derives
// accuracy and readiness from the combined totals in the same statement.
func (r *CategoryProgressRepository) ApplyCategoryDelta(ctx context.Context, d progress.CategoryDelta) (*progress.CategoryProgress, error) {
	query := `
		INSERT INTO category_progress (` + categoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, category_id) DO UPDATE SET
			questions_attempted = category_progress.questions_attempted + EXCLUDED.questions_attempted,
			questions_correct = category_progress.questions_correct + EXCLUDED.questions_correct,
			accuracy_percentage = ROUND(
				100.0 * (category_progress.questions_correct + EXCLUDED.questions_correct)
				/ (category_progress.questions_attempted + EXCLUDED.questions_attempted), 2
			)::double precision,
			is_ready_for_test = ROUND(
				100.0 * (category_progress.questions_correct + EXCLUDED.questions_correct)
				/ (category_progress.questions_attempted + EXCLUDED.questions_attempted), 2
			) >= `+readyThreshold+`,
			last_practice_date = EXCLUDED.last_practice_date,
			total_practice_time_seconds = category_progress.total_practice_time_seconds + EXCLUDED.total_practice_time_seconds
		RETURNING ` + categoryColumns

	initial := progress.CategoryProgress{}.Apply(d)

	row := r.q.QueryRow(ctx, query,
		d.StudentID.String(),
		d.CategoryID.Int64(),
		d.Attempted,
		d.Correct,
		initial.AccuracyPercentage,
		initial.IsReadyForTest,
		d.PracticedAt,
		d.TimeSpentSeconds,
	)
	cp, err := scanCategoryProgress(row)
	if err != nil {
		return nil, fmt.Errorf("failed to apply category delta: %w", err)
	}
	return cp, nil
}

// ListCategoryProgress returns the student's categories ordered by id.
func (r *CategoryProgressRepository) ListCategoryProgress(ctx context.Context, studentID shared.StudentID) ([]progress.CategoryProgress, error) {
	query := `SELECT ` + categoryColumns + ` FROM category_progress WHERE student_id = $1 ORDER BY category_id`

	rows, err := r.q.Query(ctx, query, studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list category progress: %w", err)
	}
	defer rows.Close()

	result := make([]progress.CategoryProgress, 0)
	for rows.Next() {
		cp, err := scanCategoryProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category progress: %w", err)
		}
		result = append(result, *cp)
	}
	return result, rows.Err()
}

func scanCategoryProgress(row pgx.Row) (*progress.CategoryProgress, error) {
	var (
		cp         progress.CategoryProgress
		studentID  string
		categoryID int64
	)
	err := row.Scan(
		&studentID,
		&categoryID,
		&cp.QuestionsAttempted,
		&cp.QuestionsCorrect,
		&cp.AccuracyPercentage,
		&cp.IsReadyForTest,
		&cp.LastPracticeDate,
		&cp.TotalPracticeTimeSeconds,
	)
	if err != nil {
		return nil, err
	}
	cp.StudentID = shared.StudentID(studentID)
	cp.CategoryID = shared.CategoryID(categoryID)
	return &cp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS AND STREAK
// ══════════════════════════════════════════════════════════════════════════════

// PointsRepository implements progress.PointsRepository.
type PointsRepository struct {
	q Querier
}

// NewPointsRepository creates a new PointsRepository.
func NewPointsRepository(q Querier) *PointsRepository {
	return &PointsRepository{q: q}
}

const pointsColumns = `
	student_id, total_points, theory_points, current_streak, longest_streak, last_activity_date
`

// ApplyPointsDelta adds points and moves the streak in one conditional upsert:
// same day keeps the streak (at least 1), the day after extends it, any other
// gap restarts it at 1.
func (r *PointsRepository) ApplyPointsDelta(ctx context.Context, d progress.PointsDelta) (*progress.UserPoints, error) {
	query := `
		INSERT INTO user_points (
			student_id, total_points, theory_points, current_streak, longest_streak, last_activity_date, updated_at
		) VALUES ($1, $2, $2, 1, 1, $3, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			total_points = user_points.total_points + EXCLUDED.total_points,
			theory_points = user_points.theory_points + EXCLUDED.theory_points,
			current_streak = CASE
				WHEN user_points.last_activity_date = EXCLUDED.last_activity_date THEN GREATEST(user_points.current_streak, 1)
				WHEN user_points.last_activity_date = $4 THEN user_points.current_streak + 1
				ELSE 1
			END,
			longest_streak = GREATEST(user_points.longest_streak, CASE
				WHEN user_points.last_activity_date = EXCLUDED.last_activity_date THEN GREATEST(user_points.current_streak, 1)
				WHEN user_points.last_activity_date = $4 THEN user_points.current_streak + 1
				ELSE 1
			END),
			last_activity_date = EXCLUDED.last_activity_date,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + pointsColumns

	row := r.q.QueryRow(ctx, query,
		d.StudentID.String(),
		d.Points,
		pgDate(d.Today),
		pgDate(d.Yesterday),
		d.At,
	)
	up, err := scanUserPoints(row)
	if err != nil {
		return nil, fmt.Errorf("failed to apply points delta: %w", err)
	}
	return up, nil
}

// GetUserPoints returns the student's ledger row.
func (r *PointsRepository) GetUserPoints(ctx context.Context, studentID shared.StudentID) (*progress.UserPoints, error) {
	query := `SELECT ` + pointsColumns + ` FROM user_points WHERE student_id = $1`

	up, err := scanUserPoints(r.q.QueryRow(ctx, query, studentID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.ErrPointsNotFound
		}
		return nil, fmt.Errorf("failed to get user points: %w", err)
	}
	return up, nil
}

func scanUserPoints(row pgx.Row) (*progress.UserPoints, error) {
	var (
		up        progress.UserPoints
		studentID string
		last      pgtype.Date
	)
	err := row.Scan(&studentID, &up.TotalPoints, &up.TheoryPoints, &up.CurrentStreak, &up.LongestStreak, &last)
	if err != nil {
		return nil, err
	}
	up.StudentID = shared.StudentID(studentID)
	if last.Valid {
		d := time.Date(last.Time.Year(), last.Time.Month(), last.Time.Day(), 0, 0, 0, 0, time.UTC)
		up.LastActivityDate = &d
	}
	return &up, nil
}

func pgDate(d time.Time) pgtype.Date {
	return pgtype.Date{Time: d, Valid: true}
}
