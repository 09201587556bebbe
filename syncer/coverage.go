package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	timeutils "github.com/eqtlab/paycache-syncer/pkg/time"
)

type CoverageResult struct {
	Target   string // min(requiredFromISO, now - prefetchDays)
	Oldest   string // oldest cached created_at before the call, empty when nothing was cached
	Extended bool   // a backfill ran
	Backfill BackfillResult
}

// EnsureCoverage makes the cache reach back to min(requiredFromISO, now - prefetchDays),
// backfilling only when the oldest cached record is newer than that.
func (e *Engine) EnsureCoverage(
	ctx context.Context,
	accountID string,
	prefetchDays int,
	requiredFromISO string,
	opts ...CallOption,
) (CoverageResult, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return CoverageResult{}, err
	}
	if prefetchDays < 0 {
		return CoverageResult{}, fmt.Errorf("%w: negative prefetch days %d", ErrInvalidInput, prefetchDays)
	}
	requiredFrom, err := NormalizeISO(requiredFromISO)
	if err != nil {
		return CoverageResult{}, err
	}
	defer e.accounts.lock(accountID)()

	r := e.newRun(accountID, PhaseCoverage, opts)
	res, err := e.ensureCoverage(ctx, r, accountID, prefetchDays, requiredFrom)
	return res, syncFailed("ensure coverage", err)
}

func (e *Engine) ensureCoverage(
	ctx context.Context,
	r *run,
	accountID string,
	prefetchDays int,
	requiredFromISO string,
) (CoverageResult, error) {
	prefetchSince := FormatISO(timeutils.DaysBefore(e.now(), prefetchDays))
	res := CoverageResult{Target: minISO(requiredFromISO, prefetchSince)}

	oldest, ok, err := e.store.GetOldestCreatedAt(ctx, accountID)
	if err != nil {
		return res, err
	}
	if ok {
		res.Oldest = oldest
	}
	r.emit(StageStart, Progress{Oldest: res.Oldest})

	if !ok || oldest > res.Target {
		res.Extended = true
		res.Backfill, err = e.backfill(ctx, r.child(PhaseBackfill), accountID, res.Target)
		if err != nil {
			return res, err
		}
	}

	e.logger.Debug(
		"coverage: ensured",
		zap.String("account_id", accountID),
		zap.String("target", res.Target),
		zap.String("oldest", res.Oldest),
		zap.Bool("extended", res.Extended),
	)
	r.emit(StageDone, Progress{Extended: res.Extended, Oldest: res.Oldest})
	return res, nil
}
