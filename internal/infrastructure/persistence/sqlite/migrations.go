package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

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
	db         *DB
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(db *DB) *Migrator {
	return &Migrator{db: db, migrations: Migrations()}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.db.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      string
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		t, err := parseTime(at)
		if err != nil {
			return nil, err
		}
		applied[version] = t
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations and returns how many ran.
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
		err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				mig.Version, mig.Name, formatTime(time.Now()),
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

	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", last)
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

const migration001Up = `
CREATE TABLE IF NOT EXISTS question_stats (
    question_id INTEGER PRIMARY KEY,
    times_shown INTEGER NOT NULL DEFAULT 0,
    times_correct INTEGER NOT NULL DEFAULT 0,
    times_incorrect INTEGER NOT NULL DEFAULT 0,
    average_time_spent REAL NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    CHECK (times_shown = times_correct + times_incorrect)
);

CREATE TABLE IF NOT EXISTS category_progress (
    student_id TEXT NOT NULL,
    category_id INTEGER NOT NULL,
    questions_attempted INTEGER NOT NULL DEFAULT 0,
    questions_correct INTEGER NOT NULL DEFAULT 0,
    accuracy_percentage REAL NOT NULL DEFAULT 0,
    is_ready_for_test INTEGER NOT NULL DEFAULT 0,
    last_practice_date TEXT NOT NULL,
    total_practice_time_seconds INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (student_id, category_id),
    CHECK (questions_correct <= questions_attempted)
);

CREATE TABLE IF NOT EXISTS user_points (
    student_id TEXT PRIMARY KEY,
    total_points INTEGER NOT NULL DEFAULT 0,
    theory_points INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date TEXT,
    updated_at TEXT NOT NULL,
    CHECK (longest_streak >= current_streak)
);
`

const migration001Down = `
DROP TABLE IF EXISTS user_points;
DROP TABLE IF EXISTS category_progress;
DROP TABLE IF EXISTS question_stats;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS achievements (
    code TEXT PRIMARY KEY,
    kind TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_achievements (
    student_id TEXT NOT NULL,
    achievement_code TEXT NOT NULL REFERENCES achievements(code),
    unlocked_at TEXT NOT NULL,
    PRIMARY KEY (student_id, achievement_code)
);
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS achievements;
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS practice_sessions (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    client_session_id TEXT,
    title TEXT NOT NULL,
    session_type TEXT NOT NULL,
    category_id INTEGER,
    total_questions INTEGER NOT NULL,
    correct_answers INTEGER NOT NULL,
    accuracy_percentage REAL NOT NULL,
    time_spent_seconds REAL NOT NULL DEFAULT 0,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    verdict TEXT NOT NULL CHECK (verdict IN ('pass', 'fail')),
    points_earned INTEGER NOT NULL,
    feedback TEXT NOT NULL,
    results TEXT NOT NULL,
    achievements TEXT NOT NULL DEFAULT '[]',
    started_at TEXT NOT NULL,
    completed_at TEXT NOT NULL,
    UNIQUE (student_id, client_session_id)
);

CREATE INDEX IF NOT EXISTS idx_practice_sessions_student_completed ON practice_sessions(student_id, completed_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS practice_sessions;
`
