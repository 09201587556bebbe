package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/syncer"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion is the schema version Open migrates to.
const SchemaVersion = 2

const memoryPath = ":memory:"

type Config struct {
	Path string `env:"PATH, default=./data/paycache.db"`
}

// Storage implements syncer.Store on an embedded SQLite database.
type Storage struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database, applies pending migrations in order and repairs rows
// written before the normalized memo existed.
func Open(ctx context.Context, cfg Config, l *zap.Logger) (*Storage, error) {
	db, err := openDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", syncer.ErrStoreOpen, err)
	}

	if err := runMigrations(db, 0); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", syncer.ErrStoreOpen, err)
	}

	s := &Storage{db: db, logger: l}

	repaired, err := s.RepairMemoNormalized(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", syncer.ErrStoreOpen, err)
	}
	if repaired > 0 {
		l.Info("sqlite: normalized memos repaired", zap.Int("rows", repaired))
	}

	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	if path == memoryPath {
		db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		return db, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// runMigrations migrates up to version, or to the latest version when version is 0.
func runMigrations(db *sql.DB, version uint) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("set up migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("set up migrate instance: %w", err)
	}

	if version == 0 {
		err = m.Up()
	} else {
		err = m.Migrate(version)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Wipe removes every cached payment and every cursor.
func (s *Storage) Wipe(ctx context.Context) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM payments`); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
			return fmt.Errorf("delete meta: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: wipe: %w", syncer.ErrStoreWrite, err)
	}
	return nil
}

// RepairMemoNormalized computes the normalized memo of rows that have none and returns how many were fixed.
func (s *Storage) RepairMemoNormalized(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, paging_token, memo
		FROM payments
		WHERE memo_normalized IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("%w: select unnormalized memos: %w", syncer.ErrStoreRead, err)
	}

	type pending struct{ accountID, token, memo string }
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.accountID, &p.token, &p.memo); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: scan unnormalized memo: %w", syncer.ErrStoreRead, err)
		}
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: read unnormalized memos: %w", syncer.ErrStoreRead, err)
	}
	if len(todo) == 0 {
		return 0, nil
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE payments SET memo_normalized = ?
			WHERE account_id = ? AND paging_token = ?
		`)
		if err != nil {
			return fmt.Errorf("prepare repair: %w", err)
		}
		defer stmt.Close()

		for _, p := range todo {
			if _, err := stmt.ExecContext(ctx, syncer.NormalizeMemo(p.memo), p.accountID, p.token); err != nil {
				return fmt.Errorf("repair %s: %w", p.token, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: repair normalized memos: %w", syncer.ErrStoreWrite, err)
	}

	return len(todo), nil
}

// inTx runs f in one transaction, committing when f succeeds.
func (s *Storage) inTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	if err := f(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
