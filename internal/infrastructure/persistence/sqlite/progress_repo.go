package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/drivetheory/theory-hub/internal/domain/progress"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUESTION STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// QuestionStatsRepository implements progress.QuestionStatsRepository.
type QuestionStatsRepository struct {
	q querier
}

// RecordExposure folds one answered occurrence into the question row.
func (r *QuestionStatsRepository) RecordExposure(ctx context.Context, e progress.Exposure) error {
	query := `
		INSERT INTO question_stats (
			question_id, times_shown, times_correct, times_incorrect, average_time_spent, updated_at
		) VALUES (?1, 1, ?2, ?3, ?4, ?5)
		ON CONFLICT (question_id) DO UPDATE SET
			average_time_spent = (question_stats.average_time_spent * question_stats.times_shown + excluded.average_time_spent)
				/ (question_stats.times_shown + 1),
			times_shown = question_stats.times_shown + 1,
			times_correct = question_stats.times_correct + excluded.times_correct,
			times_incorrect = question_stats.times_incorrect + excluded.times_incorrect,
			updated_at = excluded.updated_at
	`

	correct, incorrect := 0, 1
	if e.Correct {
		correct, incorrect = 1, 0
	}

	_, err := r.q.ExecContext(ctx, query, e.QuestionID.Int64(), correct, incorrect, e.TimeSpentSeconds, formatTime(e.At))
	if err != nil {
		return fmt.Errorf("failed to record exposure of question %d: %w", e.QuestionID, err)
	}
	return nil
}

// GetQuestionStat returns the telemetry row of a question.
func (r *QuestionStatsRepository) GetQuestionStat(ctx context.Context, id shared.QuestionID) (*progress.QuestionStat, error) {
	query := `
		SELECT times_shown, times_correct, times_incorrect, average_time_spent, updated_at
		FROM question_stats
		WHERE question_id = ?
	`

	var (
		s       = progress.QuestionStat{QuestionID: id}
		updated string
	)
	err := r.q.QueryRowContext(ctx, query, id.Int64()).Scan(
		&s.TimesShown, &s.TimesCorrect, &s.TimesIncorrect, &s.AverageTimeSpentSeconds, &updated,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.ErrQuestionStatNotFound
		}
		return nil, fmt.Errorf("failed to get question stat: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY MASTERY
// ══════════════════════════════════════════════════════════════════════════════

// CategoryProgressRepository implements progress.CategoryProgressRepository.
type CategoryProgressRepository struct {
	q querier
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
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)
		ON CONFLICT (student_id, category_id) DO UPDATE SET
			questions_attempted = category_progress.questions_attempted + excluded.questions_attempted,
			questions_correct = category_progress.questions_correct + excluded.questions_correct,
			accuracy_percentage = round(
				100.0 * (category_progress.questions_correct + excluded.questions_correct)
				/ (category_progress.questions_attempted + excluded.questions_attempted), 2
			),
			is_ready_for_test = round(
				100.0 * (category_progress.questions_correct + excluded.questions_correct)
				/ (category_progress.questions_attempted + excluded.questions_attempted), 2
			) >= ` + readyThreshold + `,
			last_practice_date = excluded.last_practice_date,
			total_practice_time_seconds = category_progress.total_practice_time_seconds + excluded.total_practice_time_seconds
		RETURNING ` + categoryColumns

	initial := progress.CategoryProgress{}.Apply(d)

	row := r.q.QueryRowContext(ctx, query,
		d.StudentID.String(),
		d.CategoryID.Int64(),
		d.Attempted,
		d.Correct,
		initial.AccuracyPercentage,
		initial.IsReadyForTest,
		formatTime(d.PracticedAt),
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
	query := `SELECT ` + categoryColumns + ` FROM category_progress WHERE student_id = ? ORDER BY category_id`

	rows, err := r.q.QueryContext(ctx, query, studentID.String())
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

func scanCategoryProgress(row scanner) (*progress.CategoryProgress, error) {
	var (
		cp           progress.CategoryProgress
		studentID    string
		categoryID   int64
		lastPractice string
	)
	err := row.Scan(
		&studentID,
		&categoryID,
		&cp.QuestionsAttempted,
		&cp.QuestionsCorrect,
		&cp.AccuracyPercentage,
		&cp.IsReadyForTest,
		&lastPractice,
		&cp.TotalPracticeTimeSeconds,
	)
	if err != nil {
		return nil, err
	}
	cp.StudentID = shared.StudentID(studentID)
	cp.CategoryID = shared.CategoryID(categoryID)
	if cp.LastPracticeDate, err = parseTime(lastPractice); err != nil {
		return nil, err
	}
	return &cp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS AND STREAK
// ══════════════════════════════════════════════════════════════════════════════

// PointsRepository implements progress.PointsRepository.
type PointsRepository struct {
	q querier
}

const pointsColumns = `
	student_id, total_points, theory_points, current_streak, longest_streak, last_activity_date
`

// ApplyPointsDelta adds points and moves the streak in one conditional upsert.
// Dates are stored as YYYY-MM-DD text so equality is calendar-day equality.
func (r *PointsRepository) ApplyPointsDelta(ctx context.Context, d progress.PointsDelta) (*progress.UserPoints, error) {
	query := `
		INSERT INTO user_points (
			student_id, total_points, theory_points, current_streak, longest_streak, last_activity_date, updated_at
		) VALUES (?1, ?2, ?2, 1, 1, ?3, ?5)
		ON CONFLICT (student_id) DO UPDATE SET
			total_points = user_points.total_points + excluded.total_points,
			theory_points = user_points.theory_points + excluded.theory_points,
			current_streak = CASE
				WHEN user_points.last_activity_date = excluded.last_activity_date THEN max(user_points.current_streak, 1)
				WHEN user_points.last_activity_date = ?4 THEN user_points.current_streak + 1
				ELSE 1
			END,
			longest_streak = max(user_points.longest_streak, CASE
				WHEN user_points.last_activity_date = excluded.last_activity_date THEN max(user_points.current_streak, 1)
				WHEN user_points.last_activity_date = ?4 THEN user_points.current_streak + 1
				ELSE 1
			END),
			last_activity_date = excluded.last_activity_date,
			updated_at = excluded.updated_at
		RETURNING ` + pointsColumns

	row := r.q.QueryRowContext(ctx, query,
		d.StudentID.String(),
		d.Points,
		formatDate(d.Today),
		formatDate(d.Yesterday),
		formatTime(d.At),
	)
	up, err := scanUserPoints(row)
	if err != nil {
		return nil, fmt.Errorf("failed to apply points delta: %w", err)
	}
	return up, nil
}

// GetUserPoints returns the student's ledger row.
func (r *PointsRepository) GetUserPoints(ctx context.Context, studentID shared.StudentID) (*progress.UserPoints, error) {
	query := `SELECT ` + pointsColumns + ` FROM user_points WHERE student_id = ?`

	up, err := scanUserPoints(r.q.QueryRowContext(ctx, query, studentID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.ErrPointsNotFound
		}
		return nil, fmt.Errorf("failed to get user points: %w", err)
	}
	return up, nil
}

func scanUserPoints(row scanner) (*progress.UserPoints, error) {
	var (
		up        progress.UserPoints
		studentID string
		last      sql.NullString
	)
	err := row.Scan(&studentID, &up.TotalPoints, &up.TheoryPoints, &up.CurrentStreak, &up.LongestStreak, &last)
	if err != nil {
		return nil, err
	}
	up.StudentID = shared.StudentID(studentID)
	if last.Valid {
		d, err := parseDate(last.String)
		if err != nil {
			return nil, err
		}
		up.LastActivityDate = &d
	}
	return &up, nil
}
