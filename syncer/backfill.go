package syncer

import (
	"context"

	"go.uber.org/zap"
)

type BackfillResult struct {
	Pages        int
	Fetched      int
	Stored       int
	Skipped      int
	ReachedStart bool // an empty page was reached before the boundary
	Truncated    bool // stopped by the page ceiling
}

// Backfill walks the account's feed from the newest payment backwards and caches every record
// created at or after sinceISO, a date or an RFC 3339 timestamp. An empty sinceISO loads the whole history (up to the page ceiling).
func (e *Engine) Backfill(ctx context.Context, accountID, sinceISO string, opts ...CallOption) (BackfillResult, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return BackfillResult{}, err
	}
	since, err := NormalizeISO(sinceISO)
	if err != nil {
		return BackfillResult{}, err
	}
	defer e.accounts.lock(accountID)()

	r := e.newRun(accountID, PhaseBackfill, opts)
	res, err := e.backfill(ctx, r, accountID, since)
	return res, syncFailed("backfill", err)
}

func (e *Engine) backfill(ctx context.Context, r *run, accountID, sinceISO string) (BackfillResult, error) {
	var res BackfillResult
	r.emit(StageStart, Progress{})

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, abortedError("backfill", err)
		}
		if res.Pages >= e.cfg.MaxBackfillPages {
			res.Truncated = true
			e.logger.Warn(
				"backfill: page ceiling reached",
				zap.String("account_id", accountID),
				zap.String("since", sinceISO),
				zap.Int("pages", res.Pages),
			)
			break
		}

		records, err := e.fetchPage(ctx, PageRequest{
			AccountID: accountID,
			Order:     OrderDesc,
			Limit:     e.cfg.PageLimit,
			Cursor:    cursor,
		})
		if err != nil {
			return res, err
		}
		if len(records) == 0 {
			res.ReachedStart = true
			break
		}

		res.Pages++
		res.Fetched += len(records)

		// only stragglers of a boundary-crossing page are dropped, the page itself is still written
		inWindow := records
		if sinceISO != "" {
			inWindow = make([]PaymentRecord, 0, len(records))
			for _, rec := range records {
				if rec.CreatedAt >= sinceISO {
					inWindow = append(inWindow, rec)
				}
			}
		}
		if len(inWindow) > 0 {
			upserted, err := e.store.UpsertBatch(ctx, accountID, inWindow)
			if err != nil {
				return res, err
			}
			res.Stored += upserted.Stored
			res.Skipped += upserted.Skipped
		}

		oldest := records[len(records)-1]
		r.emit(StagePage, Progress{
			Page:    res.Pages,
			Records: res.Stored,
			Newest:  records[0].CreatedAt,
			Oldest:  oldest.CreatedAt,
		})

		if sinceISO != "" && oldest.CreatedAt < sinceISO {
			break
		}
		if oldest.PagingToken == "" {
			// nothing to continue from, the feed is malformed
			e.logger.Warn("backfill: page ends without paging token", zap.String("account_id", accountID))
			break
		}
		cursor = oldest.PagingToken
	}

	e.logger.Debug(
		"backfill: done",
		zap.String("account_id", accountID),
		zap.String("since", sinceISO),
		zap.Int("pages", res.Pages),
		zap.Int("stored", res.Stored),
	)
	r.emit(StageDone, Progress{Page: res.Pages, Records: res.Stored})
	return res, nil
}
