package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// AchievementRepository implements achievement.UnlockRepository and
// achievement.CatalogRepository.
type AchievementRepository struct {
	q querier
}

// Grant inserts the unlock once. A repeated grant is a no-op that reports false.
func (r *AchievementRepository) Grant(ctx context.Context, studentID shared.StudentID, code string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO user_achievements (student_id, achievement_code, unlocked_at)
		VALUES (?, ?, ?)
		ON CONFLICT (student_id, achievement_code) DO NOTHING
	`, studentID.String(), code, formatTime(at))
	if err != nil {
		return false, fmt.Errorf("failed to grant achievement %s: %w", code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to grant achievement %s: %w", code, err)
	}
	return n == 1, nil
}

// ListUnlocks returns the student's unlocks, oldest first.
func (r *AchievementRepository) ListUnlocks(ctx context.Context, studentID shared.StudentID) ([]achievement.Unlock, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT achievement_code, unlocked_at
		FROM user_achievements
		WHERE student_id = ?
		ORDER BY unlocked_at, achievement_code
	`, studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	defer rows.Close()

	unlocks := make([]achievement.Unlock, 0)
	for rows.Next() {
		var (
			u  = achievement.Unlock{StudentID: studentID}
			at string
		)
		if err := rows.Scan(&u.Code, &at); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		if u.UnlockedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// SyncCatalog upserts every definition.
func (r *AchievementRepository) SyncCatalog(ctx context.Context, defs []achievement.Definition) error {
	now := formatTime(time.Now())
	for _, d := range defs {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO achievements (code, kind, name, description, points, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (code) DO UPDATE SET
				kind = excluded.kind,
				name = excluded.name,
				description = excluded.description,
				points = excluded.points,
				updated_at = excluded.updated_at
		`, d.Code, d.Kind.String(), d.Name, d.Description, d.Points, now)
		if err != nil {
			return fmt.Errorf("failed to sync achievement %s: %w", d.Code, err)
		}
	}
	return nil
}
