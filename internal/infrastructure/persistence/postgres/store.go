package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/practice"
	"github.com/drivetheory/theory-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements port.Store on a PostgreSQL pool.
type Store struct {
	conn *Connection
	repositories
}

var _ port.Store = (*Store)(nil)

// NewStore creates a store. The store owns conn and closes it on Close.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn, repositories: newRepositories(conn)}
}

// QuestionStats returns the telemetry repository bound to the pool.
func (s *Store) QuestionStats() progress.QuestionStatsRepository {
	return NewQuestionStatsRepository(s.conn)
}

// Catalog returns the catalog repository bound to the pool.
func (s *Store) Catalog() achievement.CatalogRepository {
	return s.achievements
}

// WithinTx runs fn with repositories bound to one transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

// Connection exposes the pool for migrations and health reporting.
func (s *Store) Connection() *Connection {
	return s.conn
}

type repositories struct {
	categories   *CategoryProgressRepository
	points       *PointsRepository
	achievements *AchievementRepository
	sessions     *SessionRepository
}

func newRepositories(q Querier) repositories {
	return repositories{
		categories:   NewCategoryProgressRepository(q),
		points:       NewPointsRepository(q),
		achievements: NewAchievementRepository(q),
		sessions:     NewSessionRepository(q),
	}
}

func (r repositories) Categories() progress.CategoryProgressRepository { return r.categories }
func (r repositories) Points() progress.PointsRepository               { return r.points }
func (r repositories) Unlocks() achievement.UnlockRepository           { return r.achievements }
func (r repositories) Sessions() practice.SessionRepository            { return r.sessions }
