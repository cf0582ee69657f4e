package sqlite

import (
	"context"
	"database/sql"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/practice"
	"github.com/drivetheory/theory-hub/internal/domain/progress"
)

// Store implements port.Store on SQLite.
type Store struct {
	db *DB
	repositories
}

var _ port.Store = (*Store)(nil)

// NewStore creates a store. The store owns db and closes it on Close.
func NewStore(db *DB) *Store {
	return &Store{db: db, repositories: newRepositories(db.db)}
}

// OpenMemory opens a migrated in-memory store with the catalog synced.
func OpenMemory(ctx context.Context, catalog *achievement.Catalog) (*Store, error) {
	db, err := Open(ctx, MemoryPath)
	if err != nil {
		return nil, err
	}
	if _, err := NewMigrator(db).Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	store := NewStore(db)
	if catalog != nil {
		if err := store.Catalog().SyncCatalog(ctx, catalog.Definitions()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

// QuestionStats returns the telemetry repository.
func (s *Store) QuestionStats() progress.QuestionStatsRepository {
	return &QuestionStatsRepository{q: s.db.db}
}

// Catalog returns the catalog repository.
func (s *Store) Catalog() achievement.CatalogRepository {
	return s.achievements
}

// WithinTx runs fn with repositories bound to one transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for migrations.
func (s *Store) DB() *DB { return s.db }

type repositories struct {
	categories   *CategoryProgressRepository
	points       *PointsRepository
	achievements *AchievementRepository
	sessions     *SessionRepository
}

func newRepositories(q querier) repositories {
	return repositories{
		categories:   &CategoryProgressRepository{q: q},
		points:       &PointsRepository{q: q},
		achievements: &AchievementRepository{q: q},
		sessions:     &SessionRepository{q: q},
	}
}

func (r repositories) Categories() progress.CategoryProgressRepository { return r.categories }
func (r repositories) Points() progress.PointsRepository               { return r.points }
func (r repositories) Unlocks() achievement.UnlockRepository           { return r.achievements }
func (r repositories) Sessions() practice.SessionRepository            { return r.sessions }
