package syncer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/storage/sqlite"
	"github.com/eqtlab/paycache-syncer/syncer"
)

const account = "GACCOUNTAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// statusErr mimics a Horizon error response.
type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

// feed is an in-memory payment feed paging the way Horizon does: tokens are ordered, a cursor
// excludes itself, desc pages walk back and asc pages walk forward.
type feed struct {
	mu      sync.Mutex
	records []syncer.PaymentRecord
	calls   []syncer.PageRequest
	memos   map[string]syncer.Memo
	// failures are returned by the next Payments calls, one per call
	failures []error
}

func newFeed(records ...syncer.PaymentRecord) *feed {
	f := &feed{memos: make(map[string]syncer.Memo)}
	f.add(records...)
	return f
}

func (f *feed) add(records ...syncer.PaymentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	sort.Slice(f.records, func(i, j int) bool { return f.records[i].PagingToken < f.records[j].PagingToken })
}

func (f *feed) failNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

func (f *feed) requests() []syncer.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syncer.PageRequest(nil), f.calls...)
}

func (f *feed) Payments(_ context.Context, req syncer.PageRequest) ([]syncer.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return nil, err
		}
	}

	var page []syncer.PaymentRecord
	if req.Order == syncer.OrderDesc {
		for i := len(f.records) - 1; i >= 0 && len(page) < req.Limit; i-- {
			if req.Cursor == "" || f.records[i].PagingToken < req.Cursor {
				page = append(page, f.records[i])
			}
		}
		return page, nil
	}

	for i := 0; i < len(f.records) && len(page) < req.Limit; i++ {
		if req.Cursor == "" || f.records[i].PagingToken > req.Cursor {
			page = append(page, f.records[i])
		}
	}
	return page, nil
}

func (f *feed) TransactionMemo(_ context.Context, hash string) (syncer.Memo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	memo, ok := f.memos[hash]
	if !ok {
		return syncer.Memo{}, statusErr(404)
	}
	return memo, nil
}

func (f *feed) OperationTransactionHash(_ context.Context, operationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == operationID {
			return r.TransactionHash, nil
		}
	}
	return "", statusErr(404)
}

// payment builds a remote payment to account; n orders tokens the way creation times are ordered.
func payment(n int, createdAt, memo string) syncer.PaymentRecord {
	token := fmt.Sprintf("%012d", n)
	memoType := "none"
	if memo != "" {
		memoType = "text"
	}
	return syncer.PaymentRecord{
		ID:              token,
		PagingToken:     token,
		OperationType:   syncer.OperationPayment,
		From:            "GSENDER",
		To:              account,
		Amount:          "5.0000000",
		AssetType:       syncer.AssetTypeNative,
		CreatedAt:       createdAt,
		TransactionHash: "tx" + token,
		Memo:            memo,
		MemoType:        memoType,
	}
}

func token(n int) string {
	return fmt.Sprintf("%012d", n)
}

func newStore(t *testing.T) *sqlite.Storage {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: filepath.Join(t.TempDir(), "paycache.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var fastRetry = syncer.RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    2 * time.Millisecond,
	Retryable:   syncer.IsTransient,
}

func newEngine(t *testing.T, s syncer.Store, l syncer.Ledger, opts ...syncer.Option) *syncer.Engine {
	t.Helper()
	opts = append([]syncer.Option{syncer.WithRetryPolicy(fastRetry)}, opts...)
	return syncer.New(s, l, zap.NewNop(), syncer.Config{PageLimit: 2, MaxBackfillPages: 50, MaxRefreshPages: 50}, opts...)
}

func storedTokens(t *testing.T, s syncer.Querier) []string {
	t.Helper()
	records, err := syncer.Collect(s.IterateByAccountCreatedRange(context.Background(), account, syncer.Range{}))
	require.NoError(t, err)
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.PagingToken)
	}
	return out
}
