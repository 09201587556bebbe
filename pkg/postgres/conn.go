package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgMaxConns = 500

type Config struct {
	URL            string `env:"URL"` // Required by the postgres backend
	MaxConns       int32  `env:"MAX_CONNS, default=500"`
	MigrationsPath string `env:"MIGRATIONS_PATH, default=file://./migrations"`
}

func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("empty database url")
	}

	pgcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	pgcfg.MaxConns = pgMaxConns
	if cfg.MaxConns > 0 {
		pgcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgcfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies every pending migration found at cfg.MigrationsPath.
func Migrate(cfg Config) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.URL)
	if err != nil {
		return fmt.Errorf("set up migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
