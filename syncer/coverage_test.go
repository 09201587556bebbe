package syncer_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqtlab/paycache-syncer/mocks"
	"github.com/eqtlab/paycache-syncer/syncer"
)

func clock(iso string) syncer.Option {
	return syncer.WithClock(func() time.Time {
		t, _ := time.Parse(syncer.ISOLayout, iso)
		return t
	})
}

func TestEnsureCoverageSkipsCoveredAccount(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.UpsertBatch(ctx, account, []syncer.PaymentRecord{payment(1, "2023-01-01T00:00:00Z", "")})
	require.NoError(t, err)

	// no expectations: any remote call fails the test
	ledger := mocks.NewMockLedger(gomock.NewController(t))
	e := newEngine(t, s, ledger, clock("2024-03-01T00:00:00Z"))

	res, err := e.EnsureCoverage(ctx, account, 30, "")
	require.NoError(t, err)

	assert.False(t, res.Extended)
	assert.Equal(t, "2024-01-31T00:00:00Z", res.Target)
	assert.Equal(t, "2023-01-01T00:00:00Z", res.Oldest)
}

func TestEnsureCoverageBackfillsEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	e := newEngine(t, s, history(), clock("2024-02-10T00:00:00Z"))

	res, err := e.EnsureCoverage(ctx, account, 30, "")
	require.NoError(t, err)

	assert.True(t, res.Extended)
	assert.Empty(t, res.Oldest)
	assert.Equal(t, "2024-01-11T00:00:00Z", res.Target)
	assert.Equal(t, 2, res.Backfill.Stored)
	assert.Equal(t, []string{token(6), token(5)}, storedTokens(t, s))
}

func TestEnsureCoverageUsesEarlierRequiredDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	e := newEngine(t, s, history(), clock("2024-02-10T00:00:00Z"))

	_, err := e.Backfill(ctx, account, "2024-01-15T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, storedTokens(t, s), 2)

	res, err := e.EnsureCoverage(ctx, account, 30, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	assert.True(t, res.Extended)
	assert.Equal(t, "2024-01-01T00:00:00Z", res.Target)
	assert.Equal(t, "2024-01-20T00:00:00Z", res.Oldest)
	assert.Equal(t, []string{token(6), token(5), token(4), token(3)}, storedTokens(t, s))

	oldest, ok, err := s.GetOldestCreatedAt(ctx, account)
	require.NoError(t, err)
	require.True(t, ok)
	assert.LessOrEqual(t, oldest, res.Target)
}

func TestEnsureCoverageRejectsNegativeDays(t *testing.T) {
	ledger := mocks.NewMockLedger(gomock.NewController(t))
	_, err := newEngine(t, newStore(t), ledger).EnsureCoverage(context.Background(), account, -1, "")
	require.ErrorIs(t, err, syncer.ErrInvalidInput)
	assert.NotErrorIs(t, err, syncer.ErrSyncFailed)
}

func TestEnsureCoverageReportsBackfillFailure(t *testing.T) {
	ledger := mocks.NewMockLedger(gomock.NewController(t))
	ledger.EXPECT().Payments(gomock.Any(), gomock.Any()).Return(nil, statusErr(500)).Times(3)

	_, err := newEngine(t, newStore(t), ledger).EnsureCoverage(context.Background(), account, 7, "")
	require.ErrorIs(t, err, syncer.ErrSyncFailed)
	assert.ErrorIs(t, err, syncer.ErrNetwork)
}

func TestEnsureCoverageNormalizesRequiredDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := newFeed(
		payment(1, "2023-12-31T00:00:00Z", ""),
		payment(2, "2024-01-01T00:00:00Z", ""),
		payment(3, "2024-01-05T00:00:00Z", ""),
	)
	e := newEngine(t, s, f, clock("2024-01-10T00:00:00Z"))

	res, err := e.EnsureCoverage(ctx, account, 0, "2024-01-01")
	require.NoError(t, err)
	assert.True(t, res.Extended)
	assert.Equal(t, "2024-01-01T00:00:00Z", res.Target)
	assert.Equal(t, []string{token(3), token(2)}, storedTokens(t, s))
	calls := len(f.requests())

	// same instant in other layouts is already covered
	for _, required := range []string{"2024-01-01", "2024-01-01T00:00:00.000Z", "2024-01-01T01:00:00+01:00"} {
		res, err = e.EnsureCoverage(ctx, account, 0, required)
		require.NoError(t, err, required)
		assert.False(t, res.Extended, required)
		assert.Equal(t, "2024-01-01T00:00:00Z", res.Target, required)
	}
	assert.Len(t, f.requests(), calls)
}

func TestEnsureCoverageRejectsMalformedRequiredDate(t *testing.T) {
	ledger := mocks.NewMockLedger(gomock.NewController(t))
	_, err := newEngine(t, newStore(t), ledger).EnsureCoverage(context.Background(), account, 30, "01/01/2024")
	require.ErrorIs(t, err, syncer.ErrInvalidInput)
	assert.NotErrorIs(t, err, syncer.ErrSyncFailed)
}
