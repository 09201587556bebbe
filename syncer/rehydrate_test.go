package syncer_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/mocks"
	"github.com/eqtlab/paycache-syncer/syncer"
)

func TestRehydrateEmptyMemos(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	records := []syncer.PaymentRecord{
		payment(1, "2024-01-01T00:00:00Z", ""),
		payment(2, "2024-01-02T00:00:00Z", ""),
		payment(3, "2024-01-03T00:00:00Z", ""),
		payment(4, "2024-01-04T00:00:00Z", "KNOWN"),
		payment(5, "2024-01-05T00:00:00Z", ""),
		payment(6, "2024-01-06T00:00:00Z", ""),
	}
	// two operations of one transaction
	records[0].TransactionHash = "txA"
	records[1].TransactionHash = "txA"
	// stored without its transaction hash
	records[2].TransactionHash = ""
	records[2].ID = "op3"
	_, err := s.UpsertBatch(ctx, account, records)
	require.NoError(t, err)

	ledger := mocks.NewMockLedger(gomock.NewController(t))
	ledger.EXPECT().TransactionMemo(gomock.Any(), "txA").Return(syncer.Memo{Value: "INV-1", Type: "text"}, nil).Times(1)
	ledger.EXPECT().OperationTransactionHash(gomock.Any(), "op3").Return("txC", nil).Times(1)
	ledger.EXPECT().TransactionMemo(gomock.Any(), "txC").Return(syncer.Memo{Value: "INV-3", Type: "text"}, nil).Times(1)
	ledger.EXPECT().TransactionMemo(gomock.Any(), "tx"+token(5)).Return(syncer.Memo{}, statusErr(400)).Times(2)
	ledger.EXPECT().TransactionMemo(gomock.Any(), "tx"+token(6)).Return(syncer.Memo{Type: "none"}, nil).Times(1)

	e := syncer.New(s, ledger, zap.NewNop(), syncer.Config{RehydrateConcurrency: 1}, syncer.WithRetryPolicy(fastRetry))

	res, err := e.RehydrateEmptyMemos(ctx, account, "", "")
	require.NoError(t, err)
	assert.Equal(t, syncer.RehydrateResult{Scanned: 6, Candidates: 5, Updated: 3, Failed: 1}, res)

	patched, err := syncer.Collect(s.IterateByAccountMemoRange(ctx, account, "INV-1", syncer.Range{}))
	require.NoError(t, err)
	require.Len(t, patched, 2)
	assert.Equal(t, token(2), patched[0].PagingToken)
	assert.Equal(t, token(1), patched[1].PagingToken)
	assert.Equal(t, "text", patched[0].MemoType)

	byNorm, err := syncer.Collect(s.IterateByAccountNormalizedMemoRange(ctx, account, "inv-3", syncer.Range{}))
	require.NoError(t, err)
	require.Len(t, byNorm, 1)
	assert.Equal(t, token(3), byNorm[0].PagingToken)

	// patched records are no longer candidates, the cached empty memo of record 6 spares the second lookup
	res, err = e.RehydrateEmptyMemos(ctx, account, "", "")
	require.NoError(t, err)
	assert.Equal(t, syncer.RehydrateResult{Scanned: 6, Candidates: 2, Updated: 0, Failed: 1}, res)
}

func TestRehydrateWindowIncludesUpperBound(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := newFeed()
	for i, createdAt := range []string{
		"2024-01-01T00:00:00Z",
		"2024-01-02T00:00:00Z",
		"2024-01-03T00:00:00Z",
		"2024-01-04T00:00:00Z",
	} {
		r := payment(i+1, createdAt, "")
		f.memos[r.TransactionHash] = syncer.Memo{Value: "M", Type: "text"}
		_, err := s.UpsertBatch(ctx, account, []syncer.PaymentRecord{r})
		require.NoError(t, err)
	}

	res, err := newEngine(t, s, f).RehydrateEmptyMemos(ctx, account, "2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)

	withMemo, err := syncer.Collect(s.IterateByAccountMemoRange(ctx, account, "M", syncer.Range{}))
	require.NoError(t, err)
	require.Len(t, withMemo, 2)
	assert.Equal(t, token(3), withMemo[0].PagingToken)
	assert.Equal(t, token(2), withMemo[1].PagingToken)
}

func TestRehydrateCountsMissingTransactions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.UpsertBatch(ctx, account, []syncer.PaymentRecord{payment(1, "2024-01-01T00:00:00Z", "")})
	require.NoError(t, err)

	res, err := newEngine(t, s, newFeed()).RehydrateEmptyMemos(ctx, account, "", "")
	require.NoError(t, err)
	assert.Equal(t, syncer.RehydrateResult{Scanned: 1, Candidates: 1, Failed: 1}, res)
}

func TestRehydrateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newStore(t)
	_, err := s.UpsertBatch(context.Background(), account, []syncer.PaymentRecord{payment(1, "2024-01-01T00:00:00Z", "")})
	require.NoError(t, err)

	ledger := mocks.NewMockLedger(gomock.NewController(t))
	_, err = newEngine(t, s, ledger).RehydrateEmptyMemos(ctx, account, "", "")
	require.ErrorIs(t, err, syncer.ErrAborted)
}

func TestRehydrateTreatsBlankMemosAsMissing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := newFeed()
	records := []syncer.PaymentRecord{
		payment(1, "2024-01-01T00:00:00Z", "\t"),
		payment(2, "2024-01-02T00:00:00Z", "\u200b\u200d"),
		payment(3, "2024-01-03T00:00:00Z", "KNOWN"),
	}
	for _, r := range records {
		f.memos[r.TransactionHash] = syncer.Memo{Value: "INV" + r.PagingToken, Type: "text"}
	}
	_, err := s.UpsertBatch(ctx, account, records)
	require.NoError(t, err)
	e := newEngine(t, s, f)

	res, err := e.RehydrateEmptyMemos(ctx, account, "2024-01-01", "2024-01-03")
	require.NoError(t, err)
	assert.Equal(t, syncer.RehydrateResult{Scanned: 3, Candidates: 2, Updated: 2}, res)

	res, err = e.RehydrateEmptyMemos(ctx, account, "2024-01-01", "2024-01-03")
	require.NoError(t, err)
	assert.Equal(t, syncer.RehydrateResult{Scanned: 3}, res)

	stored, err := syncer.Collect(s.IterateByAccountCreatedRange(ctx, account, syncer.Range{}))
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "KNOWN", stored[0].Memo)
	assert.Equal(t, "INV"+token(2), stored[1].Memo)
	assert.Equal(t, "INV"+token(1), stored[2].Memo)
}

func TestRehydrateRejectsMalformedWindow(t *testing.T) {
	ledger := mocks.NewMockLedger(gomock.NewController(t))
	_, err := newEngine(t, newStore(t), ledger).RehydrateEmptyMemos(context.Background(), account, "2024-01-01", "soon")
	require.ErrorIs(t, err, syncer.ErrInvalidInput)
}
