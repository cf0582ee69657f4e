// Package main applies, rolls back and reports schema migrations for the
// configured store.
//
// Usage:
//
//	migrate up       apply every pending migration
//	migrate down     roll back the latest applied migration
//	migrate status   list migrations and whether they are applied
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drivetheory/theory-hub/config"
	"github.com/drivetheory/theory-hub/internal/infrastructure/persistence/postgres"
	"github.com/drivetheory/theory-hub/internal/infrastructure/persistence/sqlite"
	"github.com/drivetheory/theory-hub/pkg/logger"
	"github.com/drivetheory/theory-hub/pkg/retry"
)

const usage = "usage: migrate <up|down|status>"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// status is one row of `migrate status`.
type status struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// migrator hides the driver-specific Migration types.
type migrator interface {
	Migrate(ctx context.Context) (int, error)
	Rollback(ctx context.Context) (bool, error)
	Status(ctx context.Context) ([]status, error)
	Close() error
}

func run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: cfg.Observability.LogFormat,
	}).With(logger.Component("migrate"), logger.String("driver", cfg.Store.Driver))
	defer func() { _ = log.Sync() }()

	m, err := openMigrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch args[0] {
	case "up":
		applied, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		log.Info("migrations applied", logger.Int("count", applied))

	case "down":
		rolled, err := m.Rollback(ctx)
		if err != nil {
			return err
		}
		if !rolled {
			log.Info("nothing to roll back")
			return nil
		}
		log.Info("rolled back latest migration")

	case "status":
		rows, err := m.Status(ctx)
		if err != nil {
			return err
		}
		pending := 0
		for _, r := range rows {
			mark := "pending"
			if r.Applied {
				mark = "applied " + r.AppliedAt.UTC().Format(time.RFC3339)
			} else {
				pending++
			}
			fmt.Printf("%04d  %-32s %s\n", r.Version, r.Name, mark)
		}
		log.Info("migration status", logger.Int("total", len(rows)), logger.Int("pending", pending))

	default:
		return fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DRIVERS
// ══════════════════════════════════════════════════════════════════════════════

func openMigrator(ctx context.Context, cfg *config.Config) (migrator, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		conn, err := retry.DoWithData(ctx, retry.ConnectConfig(), func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.Connect(ctx, cfg.Store.URL, postgres.DefaultPoolOptions())
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &postgresMigrator{Migrator: postgres.NewMigrator(conn), conn: conn}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return &sqliteMigrator{Migrator: sqlite.NewMigrator(db), db: db}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

type postgresMigrator struct {
	*postgres.Migrator
	conn *postgres.Connection
}

func (p *postgresMigrator) Status(ctx context.Context) ([]status, error) {
	ms, err := p.Migrator.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]status, 0, len(ms))
	for _, m := range ms {
		out = append(out, status{Version: m.Version, Name: m.Name, Applied: m.IsApplied, AppliedAt: m.AppliedAt})
	}
	return out, nil
}

func (p *postgresMigrator) Close() error {
	p.conn.Close()
	return nil
}

type sqliteMigrator struct {
	*sqlite.Migrator
	db *sqlite.DB
}

func (s *sqliteMigrator) Status(ctx context.Context) ([]status, error) {
	ms, err := s.Migrator.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]status, 0, len(ms))
	for _, m := range ms {
		out = append(out, status{Version: m.Version, Name: m.Name, Applied: m.IsApplied, AppliedAt: m.AppliedAt})
	}
	return out, nil
}

func (s *sqliteMigrator) Close() error {
	return s.db.Close()
}
