package syncer

import (
	"context"

	"go.uber.org/zap"
)

type RefreshResult struct {
	Pages       int
	Stored      int
	Skipped     int
	Cursor      string // cursor after the call, empty when the feed is still empty
	Initialized bool   // no cursor existed, it was set to the newest remote record
}

// RefreshSinceCursor appends records that appeared after the saved cursor. Without a cursor it only
// initializes it to the newest remote record: history before "now" is the job of Backfill.
func (e *Engine) RefreshSinceCursor(ctx context.Context, accountID string, opts ...CallOption) (RefreshResult, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return RefreshResult{}, err
	}
	defer e.accounts.lock(accountID)()

	r := e.newRun(accountID, PhaseRefresh, opts)
	res, err := e.refresh(ctx, r, accountID)
	return res, syncFailed("refresh", err)
}

func (e *Engine) refresh(ctx context.Context, r *run, accountID string) (RefreshResult, error) {
	var res RefreshResult
	r.emit(StageStart, Progress{})

	cursor, ok, err := e.store.GetCursor(ctx, accountID)
	if err != nil {
		return res, err
	}
	if !ok {
		return e.initCursor(ctx, r, accountID)
	}
	res.Cursor = cursor

	for {
		if err := ctx.Err(); err != nil {
			return res, abortedError("refresh", err)
		}
		if res.Pages >= e.cfg.MaxRefreshPages {
			e.logger.Warn(
				"refresh: page ceiling reached, will resume from cursor",
				zap.String("account_id", accountID),
				zap.String("cursor", cursor),
			)
			break
		}

		records, err := e.fetchPage(ctx, PageRequest{
			AccountID: accountID,
			Order:     OrderAsc,
			Limit:     e.cfg.PageLimit,
			Cursor:    cursor,
		})
		if err != nil {
			return res, err
		}
		if len(records) == 0 {
			break
		}

		upserted, err := e.store.UpsertBatch(ctx, accountID, records)
		if err != nil {
			return res, err
		}
		res.Pages++
		res.Stored += upserted.Stored
		res.Skipped += upserted.Skipped

		last := records[len(records)-1].PagingToken
		if last == "" {
			e.logger.Warn("refresh: page ends without paging token", zap.String("account_id", accountID))
			break
		}
		// the cursor only moves after the page is committed, an interrupted refresh resumes right here
		if err := e.store.SetCursor(ctx, accountID, last); err != nil {
			return res, err
		}
		cursor = last
		res.Cursor = last

		r.emit(StagePage, Progress{
			Page:    res.Pages,
			Records: res.Stored,
			Oldest:  records[0].CreatedAt,
			Newest:  records[len(records)-1].CreatedAt,
		})
	}

	r.emit(StageDone, Progress{Page: res.Pages, Records: res.Stored})
	return res, nil
}

func (e *Engine) initCursor(ctx context.Context, r *run, accountID string) (RefreshResult, error) {
	res := RefreshResult{Initialized: true}

	records, err := e.fetchPage(ctx, PageRequest{
		AccountID: accountID,
		Order:     OrderDesc,
		Limit:     1,
	})
	if err != nil {
		return res, err
	}
	if len(records) > 0 && records[0].PagingToken != "" {
		if err := e.store.SetCursor(ctx, accountID, records[0].PagingToken); err != nil {
			return res, err
		}
		res.Cursor = records[0].PagingToken
	}

	e.logger.Debug(
		"refresh: cursor initialized",
		zap.String("account_id", accountID),
		zap.String("cursor", res.Cursor),
	)
	r.emit(StageDone, Progress{})
	return res, nil
}
