package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.UnlockRepository and
// achievement.CatalogRepository.
type AchievementRepository struct {
	q Querier
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(q Querier) *AchievementRepository {
	return &AchievementRepository{q: q}
}

// Grant inserts the unlock once. A repeated grant is a no-op that reports false.
func (r *AchievementRepository) Grant(ctx context.Context, studentID shared.StudentID, code string, at time.Time) (bool, error) {
	query := `
		INSERT INTO user_achievements (student_id, achievement_code, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, achievement_code) DO NOTHING
	`

	tag, err := r.q.Exec(ctx, query, studentID.String(), code, at)
	if err != nil {
		return false, fmt.Errorf("failed to grant achievement %s: %w", code, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnlocks returns the student's unlocks, oldest first.
func (r *AchievementRepository) ListUnlocks(ctx context.Context, studentID shared.StudentID) ([]achievement.Unlock, error) {
	query := `
		SELECT student_id, achievement_code, unlocked_at
		FROM user_achievements
		WHERE student_id = $1
		ORDER BY unlocked_at, achievement_code
	`

	rows, err := r.q.Query(ctx, query, studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	defer rows.Close()

	unlocks := make([]achievement.Unlock, 0)
	for rows.Next() {
		var (
			u  achievement.Unlock
			id string
		)
		if err := rows.Scan(&id, &u.Code, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		u.StudentID = shared.StudentID(id)
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// SyncCatalog upserts every definition in one batch.
func (r *AchievementRepository) SyncCatalog(ctx context.Context, defs []achievement.Definition) error {
	query := `
		INSERT INTO achievements (code, kind, name, description, points, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			points = EXCLUDED.points,
			updated_at = EXCLUDED.updated_at
	`

	batch := &pgx.Batch{}
	for _, d := range defs {
		batch.Queue(query, d.Code, d.Kind.String(), d.Name, d.Description, d.Points)
	}

	br := r.q.SendBatch(ctx, batch)
	defer br.Close()

	for _, d := range defs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to sync achievement %s: %w", d.Code, err)
		}
	}
	return nil
}
