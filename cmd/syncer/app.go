package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/config"
	"github.com/eqtlab/paycache-syncer/pkg/db"
	"github.com/eqtlab/paycache-syncer/pkg/horizon"
	"github.com/eqtlab/paycache-syncer/pkg/logger"
	"github.com/eqtlab/paycache-syncer/pkg/postgres"
	pgstorage "github.com/eqtlab/paycache-syncer/storage/postgres"
	"github.com/eqtlab/paycache-syncer/storage/sqlite"
	"github.com/eqtlab/paycache-syncer/syncer"
)

const sentryFlushTimeout = 2 * time.Second

// app holds everything a command needs. It is filled before any command runs.
type app struct {
	cfg    config.Config
	log    *logger.Logger
	pool   *pgxpool.Pool // nil with the sqlite backend
	store  syncer.Store
	engine *syncer.Engine

	closers []func()
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.ParseEnv(ctx)
	if err != nil {
		return fmt.Errorf("parse configuration: %w", err)
	}
	a.cfg = cfg

	log, err := logger.New(cfg.App)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, func() { log.Flush(sentryFlushTimeout) })

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		if err := a.openPostgres(ctx); err != nil {
			return err
		}
	default:
		s, err := sqlite.Open(ctx, cfg.SQLite, log.Logger)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = s
		a.closers = append(a.closers, func() { s.Close() })
	}

	ledger := syncer.NewHorizonLedger(horizon.New(cfg.Horizon, nil))
	a.engine = syncer.New(a.store, ledger, log.Logger, cfg.Syncer)

	log.Debug("app opened", zap.String("backend", cfg.Store.Backend), zap.String("horizon", cfg.Horizon.URL))
	return nil
}

func (a *app) openPostgres(ctx context.Context) error {
	if err := postgres.Migrate(a.cfg.DB); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}

	pool, err := postgres.Connect(ctx, a.cfg.DB)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)

	s := pgstorage.New(db.NewDB(pool, a.log.Logger))
	repaired, err := s.RepairMemoNormalized(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", syncer.ErrStoreOpen, err)
	}
	if repaired > 0 {
		a.log.Info("postgres: normalized memos repaired", zap.Int("rows", repaired))
	}

	a.store = s
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
