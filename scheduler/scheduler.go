package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/syncer"
)

// Scheduler keeps the configured accounts in sync: the actualizer periodically enqueues accounts whose
// last sync is old enough, the updater runs coverage, refresh and rehydration for every dequeued account.
type Scheduler struct {
	cfg    Config
	engine Engine
	query  syncer.Querier
	queue  Queue
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
	lastSync map[string]time.Time
}

// Engine is the part of syncer.Engine the scheduler drives.
type Engine interface {
	EnsureCoverage(ctx context.Context, accountID string, prefetchDays int, requiredFromISO string, opts ...syncer.CallOption) (syncer.CoverageResult, error)
	RefreshSinceCursor(ctx context.Context, accountID string, opts ...syncer.CallOption) (syncer.RefreshResult, error)
	RehydrateEmptyMemos(ctx context.Context, accountID, fromISO, toISO string, opts ...syncer.CallOption) (syncer.RehydrateResult, error)
}

// Job is one queued account sync.
type Job struct {
	AccountID string `json:"accountId"`
}

type Handler func(ctx context.Context, job Job) error

// Queue carries jobs from the actualizer to the updaters.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Run dequeues jobs into handle until ctx is done
	Run(ctx context.Context, handle Handler) error
}

func New(e Engine, q syncer.Querier, queue Queue, l *zap.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		engine:   e,
		query:    q,
		queue:    queue,
		logger:   l,
		now:      time.Now,
		inFlight: make(map[string]bool),
		lastSync: make(map[string]time.Time),
	}
}

// Run blocks until ctx is done or the queue stops.
func (s *Scheduler) Run(ctx context.Context) error {
	newCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("scheduler has started", zap.Strings("accounts", s.cfg.Accounts))

	// run actualizer and updaters concurrently and cancel ctx as soon one of them exit so another exit too
	var runErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		s.actualizer(newCtx)
	})
	wg.Go(func() {
		defer cancel()
		if err := s.queue.Run(newCtx, s.updater); err != nil {
			runErr = err
			s.logger.Error("updaters run", zap.Error(err))
		}
	})
	wg.Wait()

	return runErr
}

// SyncAccount brings one account up to date: coverage first, then new records, then memo repair
// over the whole cached window.
func (s *Scheduler) SyncAccount(ctx context.Context, accountID string) error {
	if _, err := s.engine.EnsureCoverage(ctx, accountID, s.cfg.PrefetchDays, s.cfg.RequiredFrom); err != nil {
		return err
	}

	refreshed, err := s.engine.RefreshSinceCursor(ctx, accountID)
	if err != nil {
		return err
	}

	oldest, ok, err := s.query.GetOldestCreatedAt(ctx, accountID)
	if err != nil || !ok {
		return err
	}
	newest, _, err := s.query.GetNewestCreatedAt(ctx, accountID)
	if err != nil {
		return err
	}

	rehydrated, err := s.engine.RehydrateEmptyMemos(ctx, accountID, oldest, newest)
	if err != nil {
		return err
	}

	s.logger.Info(
		"account synced",
		zap.String("account_id", accountID),
		zap.Int("refreshed", refreshed.Stored),
		zap.Int("rehydrated", rehydrated.Updated),
		zap.String("oldest", oldest),
		zap.String("newest", newest),
	)
	return nil
}

// nolint:lll
type Config struct {
	Accounts              []string      `env:"ACCOUNTS"`                             // Accounts to keep in sync, comma separated
	WorkerPoolSize        int           `env:"WORKER_POOL_SIZE, default=1"`          // How many updaters to spawn
	QueueSize             int           `env:"QUEUE_SIZE, default=100"`              // How many jobs the in-process queue buffers
	AccountsCheckInterval time.Duration `env:"ACCOUNTS_CHECK_INTERVAL, default=10s"` // How long the actualizer waits between account lookups
	AccountSyncInterval   time.Duration `env:"ACCOUNT_SYNC_INTERVAL, default=10m"`   // How frequently each account must be synced
	PrefetchDays          int           `env:"PREFETCH_DAYS, default=90"`            // History every account keeps cached
	RequiredFrom          string        `env:"REQUIRED_FROM"`                        // Optional date or RFC 3339 timestamp the cache must reach regardless of PrefetchDays
}
