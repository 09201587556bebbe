package syncer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/patrickmn/go-cache"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

type RehydrateResult struct {
	Scanned    int // records in the window
	Candidates int // records without memo
	Updated    int // records patched with a memo
	Failed     int // candidates whose lookups or patch failed
}

// RehydrateEmptyMemos fills memos of cached records in [fromISO, toISO] that were stored without one,
// looking the owning transactions up remotely. Failures of single records are counted, not returned;
// records that got a memo no longer match, so running it again is a no-op for them.
func (e *Engine) RehydrateEmptyMemos(
	ctx context.Context,
	accountID, fromISO, toISO string,
	opts ...CallOption,
) (RehydrateResult, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return RehydrateResult{}, err
	}
	from, err := NormalizeISO(fromISO)
	if err != nil {
		return RehydrateResult{}, err
	}
	to, err := NormalizeISO(toISO)
	if err != nil {
		return RehydrateResult{}, err
	}
	defer e.accounts.lock(accountID)()

	r := e.newRun(accountID, PhaseRehydrate, opts)
	res, err := e.rehydrate(ctx, r, accountID, Range{From: from, To: to, IncludeTo: true})
	return res, syncFailed("rehydrate", err)
}

func (e *Engine) rehydrate(ctx context.Context, r *run, accountID string, window Range) (RehydrateResult, error) {
	var res RehydrateResult

	// the scan is drained before the first remote call so no read transaction outlives it
	var candidates []PaymentRecord
	for rec, err := range e.store.IterateByAccountCreatedRange(ctx, accountID, window) {
		if err != nil {
			return res, err
		}
		res.Scanned++
		if !rec.HasMemo() {
			candidates = append(candidates, rec)
		}
	}
	res.Candidates = len(candidates)
	r.emit(StageStart, Progress{Total: res.Candidates})

	var (
		updated, failed, done atomic.Int64
		emitMu                sync.Mutex // callbacks are never invoked concurrently
	)
	p := pool.New().WithMaxGoroutines(e.cfg.RehydrateConcurrency).WithContext(ctx)
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ok, err := e.rehydrateOne(ctx, accountID, c)
			switch {
			case err != nil && ctx.Err() != nil:
				return err
			case err != nil:
				failed.Add(1)
				e.logger.Debug(
					"rehydrate: candidate skipped",
					zap.Error(err),
					zap.String("account_id", accountID),
					zap.String("paging_token", c.PagingToken),
				)
			case ok:
				updated.Add(1)
			}
			emitMu.Lock()
			r.emit(StagePage, Progress{Records: int(done.Add(1)), Total: res.Candidates})
			emitMu.Unlock()
			return nil
		})
	}
	waitErr := p.Wait()

	res.Updated = int(updated.Load())
	res.Failed = int(failed.Load())
	if err := ctx.Err(); err != nil {
		return res, abortedError("rehydrate", err)
	}
	if waitErr != nil {
		return res, waitErr
	}

	e.logger.Debug(
		"rehydrate: done",
		zap.String("account_id", accountID),
		zap.Int("scanned", res.Scanned),
		zap.Int("candidates", res.Candidates),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	r.emit(StageDone, Progress{Records: res.Updated, Total: res.Candidates})
	return res, nil
}

// rehydrateOne resolves the memo of one record and patches it; false means the transaction has no memo.
func (e *Engine) rehydrateOne(ctx context.Context, accountID string, rec PaymentRecord) (bool, error) {
	hash := rec.TransactionHash
	if hash == "" {
		err := e.retry.Do(ctx, "lookup operation", func(ctx context.Context) error {
			var err error
			hash, err = e.ledger.OperationTransactionHash(ctx, rec.OperationRef())
			return err
		})
		if err != nil {
			return false, err
		}
	}
	if hash == "" {
		return false, nil
	}

	memo, err := e.transactionMemo(ctx, hash)
	if err != nil {
		return false, err
	}
	if memo.Value == "" {
		return false, nil
	}

	return e.store.PatchMemo(ctx, accountID, rec.PagingToken, memo.Value, memo.Type)
}

// transactionMemo looks a memo up once per hash; ledger memos never change.
func (e *Engine) transactionMemo(ctx context.Context, hash string) (Memo, error) {
	if v, ok := e.memos.Get(hash); ok {
		return v.(Memo), nil
	}

	var memo Memo
	err := e.retry.Do(ctx, "lookup transaction", func(ctx context.Context) error {
		var err error
		memo, err = e.ledger.TransactionMemo(ctx, hash)
		return err
	})
	if err != nil {
		return Memo{}, err
	}

	e.memos.Set(hash, memo, cache.DefaultExpiration)
	return memo, nil
}
