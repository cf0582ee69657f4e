package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one embedded schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and tracks them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: Migrations(),
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
// It returns the number of migrations applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name,
			)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}
	return count, nil
}

// Rollback reverts the newest applied migration. It reports false when
// nothing was applied.
func (m *Migrator) Rollback(ctx context.Context) (bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return false, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return false, err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return false, nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return false, fmt.Errorf("%w: unknown applied migration %d", ErrMigrationFailed, last)
	}

	err = m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
	return err == nil, err
}

// Status returns every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// Migrations returns all embedded migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progress_aggregates", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_achievements", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_practice_sessions", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROGRESS AGGREGATES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Per-question difficulty telemetry, shared by all students
CREATE TABLE IF NOT EXISTS question_stats (
    question_id BIGINT PRIMARY KEY,
    times_shown BIGINT NOT NULL DEFAULT 0,
    times_correct BIGINT NOT NULL DEFAULT 0,
    times_incorrect BIGINT NOT NULL DEFAULT 0,
    average_time_spent DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT question_stats_shown CHECK (times_shown = times_correct + times_incorrect)
);

-- Per-student per-category mastery
CREATE TABLE IF NOT EXISTS category_progress (
    student_id TEXT NOT NULL,
    category_id BIGINT NOT NULL,
    questions_attempted BIGINT NOT NULL DEFAULT 0,
    questions_correct BIGINT NOT NULL DEFAULT 0,
    accuracy_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_ready_for_test BOOLEAN NOT NULL DEFAULT FALSE,
    last_practice_date TIMESTAMP WITH TIME ZONE NOT NULL,
    total_practice_time_seconds BIGINT NOT NULL DEFAULT 0,

    PRIMARY KEY (student_id, category_id),
    CONSTRAINT category_progress_correct CHECK (questions_correct <= questions_attempted)
);

-- Points ledger and day streak
CREATE TABLE IF NOT EXISTS user_points (
    student_id TEXT PRIMARY KEY,
    total_points BIGINT NOT NULL DEFAULT 0,
    theory_points BIGINT NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT user_points_streak CHECK (longest_streak >= current_streak),
    CONSTRAINT user_points_positive CHECK (total_points >= 0 AND theory_points >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS user_points;
DROP TABLE IF EXISTS category_progress;
DROP TABLE IF EXISTS question_stats;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS achievements (
    code TEXT PRIMARY KEY,
    kind TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_achievements (
    student_id TEXT NOT NULL,
    achievement_code TEXT NOT NULL REFERENCES achievements(code),
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, achievement_code)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_unlocked ON user_achievements(student_id, unlocked_at);
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PRACTICE SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Append-only audit log of accepted submissions
CREATE TABLE IF NOT EXISTS practice_sessions (
    id UUID PRIMARY KEY,
    student_id TEXT NOT NULL,
    client_session_id TEXT,
    title TEXT NOT NULL,
    session_type TEXT NOT NULL,
    category_id BIGINT,
    total_questions INTEGER NOT NULL,
    correct_answers INTEGER NOT NULL,
    accuracy_percentage DOUBLE PRECISION NOT NULL,
    time_spent_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    verdict TEXT NOT NULL,
    points_earned INTEGER NOT NULL,
    feedback TEXT NOT NULL,
    results JSONB NOT NULL,
    achievements JSONB NOT NULL DEFAULT '[]'::jsonb,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT practice_sessions_client_id UNIQUE (student_id, client_session_id),
    CONSTRAINT valid_verdict CHECK (verdict IN ('pass', 'fail')),
    CONSTRAINT valid_counts CHECK (correct_answers <= total_questions)
);

CREATE INDEX IF NOT EXISTS idx_practice_sessions_student_completed ON practice_sessions(student_id, completed_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS practice_sessions;
`
