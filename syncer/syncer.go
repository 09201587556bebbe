package syncer

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Engine mirrors the remote payment feed of accounts into the local store: historical backfill,
// forward refresh from a saved cursor, coverage guarantee and memo rehydration.
type Engine struct {
	cfg      Config
	store    Store
	ledger   Ledger
	retry    RetryPolicy
	emitter  *Emitter
	memos    *cache.Cache
	now      func() time.Time
	logger   *zap.Logger
	accounts accountLocks
}

// Querier is the read-only query layer over cached payments. Every sequence runs its query when
// ranged over and releases the underlying rows as soon as the loop ends, so ranging twice scans twice.
type Querier interface {
	// IterateByAccountCreatedRange yields the account's records inside r, newest first
	IterateByAccountCreatedRange(ctx context.Context, accountID string, r Range) iter.Seq2[PaymentRecord, error]
	// IterateByAccountMemoRange yields records whose raw memo equals memo, filtered by r in memory, newest first
	IterateByAccountMemoRange(ctx context.Context, accountID string, memo string, r Range) iter.Seq2[PaymentRecord, error]
	// IterateByAccountNormalizedMemoRange yields records whose normalized memo equals NormalizeMemo(memo) inside r, newest first
	IterateByAccountNormalizedMemoRange(ctx context.Context, accountID string, memo string, r Range) iter.Seq2[PaymentRecord, error]
	// GetPaymentsByRangeAndMemo returns records inside r whose raw memo contains memoSubstr (any memo when empty)
	GetPaymentsByRangeAndMemo(ctx context.Context, accountID string, r Range, memoSubstr string) ([]PaymentRecord, error)
	// GetOldestCreatedAt returns the oldest cached created_at, ok is false when the account has no rows
	GetOldestCreatedAt(ctx context.Context, accountID string) (createdAt string, ok bool, err error)
	// GetNewestCreatedAt returns the newest cached created_at, ok is false when the account has no rows
	GetNewestCreatedAt(ctx context.Context, accountID string) (createdAt string, ok bool, err error)
}

// Store is the local payment cache.
type Store interface {
	Querier
	// UpsertBatch validates and writes records in one transaction, all or nothing
	UpsertBatch(ctx context.Context, accountID string, records []PaymentRecord) (UpsertResult, error)
	// PatchMemo sets memo fields of a record whose normalized memo is still empty and reports whether a row changed
	PatchMemo(ctx context.Context, accountID, pagingToken, memo, memoType string) (bool, error)
	// GetCursor returns the forward sync cursor, ok is false when none was saved yet
	GetCursor(ctx context.Context, accountID string) (token string, ok bool, err error)
	// SetCursor saves the forward sync cursor, blank tokens are rejected
	SetCursor(ctx context.Context, accountID, token string) error
	// ClearCursor removes the cursor to force a resync
	ClearCursor(ctx context.Context, accountID string) error
	// Wipe removes every cached payment and cursor
	Wipe(ctx context.Context) error
}

// Ledger is read access to the remote payment feed.
//
//go:generate mockgen -destination=../mocks/ledger.go -package=mocks github.com/eqtlab/paycache-syncer/syncer Ledger
type Ledger interface {
	// Payments returns one page of the account's payments
	Payments(ctx context.Context, req PageRequest) ([]PaymentRecord, error)
	// TransactionMemo returns the memo of the transaction with the given hash
	TransactionMemo(ctx context.Context, hash string) (Memo, error)
	// OperationTransactionHash returns the hash of the transaction owning the operation
	OperationTransactionHash(ctx context.Context, operationID string) (string, error)
}

type Option func(*Engine)

// WithClock replaces time.Now, tests use it to pin coverage targets.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEmitter makes the engine publish progress to the given emitter instead of its own one.
func WithEmitter(em *Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithRetryPolicy replaces the retry policy built from Config.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

func New(s Store, l Ledger, logger *zap.Logger, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:    cfg,
		store:  s,
		ledger: l,
		retry: RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Retryable:   IsTransient,
		},
		emitter: NewEmitter(),
		memos:   cache.New(cfg.MemoCacheTTL, 2*cfg.MemoCacheTTL),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emitter returns the emitter every sync call publishes progress to.
func (e *Engine) Emitter() *Emitter {
	return e.emitter
}

// Store returns the local store the engine writes to.
func (e *Engine) Store() Store {
	return e.store
}

// fetchPage is the one page fetch used by every sync operation.
func (e *Engine) fetchPage(ctx context.Context, req PageRequest) ([]PaymentRecord, error) {
	var records []PaymentRecord
	err := e.retry.Do(ctx, "fetch payments page", func(ctx context.Context) error {
		var err error
		records, err = e.ledger.Payments(ctx, req)
		return err
	})
	return records, err
}

// accountLocks serializes entry points per account. Different accounts never wait on each other.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (a *accountLocks) lock(accountID string) func() {
	a.mu.Lock()
	if a.locks == nil {
		a.locks = make(map[string]*sync.Mutex)
	}
	l, ok := a.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[accountID] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// nolint:lll
type Config struct {
	PageLimit            int           `env:"PAGE_LIMIT, default=200"`             // Records requested per remote page, Horizon caps it at 200
	MaxBackfillPages     int           `env:"MAX_BACKFILL_PAGES, default=2000"`    // Safety ceiling of pages one backfill may walk
	MaxRefreshPages      int           `env:"MAX_REFRESH_PAGES, default=2000"`     // Safety ceiling of pages one refresh may walk
	RehydrateConcurrency int           `env:"REHYDRATE_CONCURRENCY, default=4"`    // How many rehydration candidates are looked up at once
	MemoCacheTTL         time.Duration `env:"MEMO_CACHE_TTL, default=10m"`         // How long transaction memos are remembered between passes
	RetryMaxAttempts     int           `env:"RETRY_MAX_ATTEMPTS, default=4"`       // Attempts per remote call including the first one
	RetryBaseDelay       time.Duration `env:"RETRY_BASE_DELAY, default=500ms"`     // First backoff delay
	RetryMaxDelay        time.Duration `env:"RETRY_MAX_DELAY, default=8s"`         // Backoff delay cap
}

func (c Config) withDefaults() Config {
	if c.PageLimit <= 0 || c.PageLimit > 200 {
		c.PageLimit = 200
	}
	if c.MaxBackfillPages <= 0 {
		c.MaxBackfillPages = 2000
	}
	if c.MaxRefreshPages <= 0 {
		c.MaxRefreshPages = 2000
	}
	if c.RehydrateConcurrency <= 0 {
		c.RehydrateConcurrency = 4
	}
	if c.MemoCacheTTL <= 0 {
		c.MemoCacheTTL = 10 * time.Minute
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 4
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 8 * time.Second
	}
	return c
}
