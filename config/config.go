package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"

	"github.com/eqtlab/paycache-syncer/pkg/horizon"
	"github.com/eqtlab/paycache-syncer/pkg/logger"
	"github.com/eqtlab/paycache-syncer/pkg/postgres"
	"github.com/eqtlab/paycache-syncer/scheduler"
	"github.com/eqtlab/paycache-syncer/storage/sqlite"
	"github.com/eqtlab/paycache-syncer/syncer"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	App       logger.Config    `env:",prefix=APP_"`
	Store     StoreConfig      `env:",prefix=STORE_"`
	SQLite    sqlite.Config    `env:",prefix=SQLITE_"`
	DB        postgres.Config  `env:",prefix=DB_"`
	Horizon   horizon.Config   `env:",prefix=HORIZON_"`
	Syncer    syncer.Config    `env:",prefix=SYNCER_"`
	Scheduler scheduler.Config `env:",prefix=SCHEDULER_"`
}

type StoreConfig struct {
	Backend string `env:"BACKEND, default=sqlite"` // sqlite or postgres
}

func ParseEnv(ctx context.Context) (Config, error) {
	cfg := Config{}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("DB_URL is required by the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if _, err := syncer.NormalizeISO(c.Scheduler.RequiredFrom); err != nil {
		return fmt.Errorf("SCHEDULER_REQUIRED_FROM: %w", err)
	}
	return nil
}
