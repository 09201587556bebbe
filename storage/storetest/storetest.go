// Package storetest holds the behaviour every syncer.Store implementation must share.
package storetest

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqtlab/paycache-syncer/syncer"
)

const (
	Account      = "GACCOUNTAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	OtherAccount = "GOTHERBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	Sender       = "GSENDERCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

// Payment builds a native payment to Account.
func Payment(token, createdAt, memo string) syncer.PaymentRecord {
	return syncer.PaymentRecord{
		ID:              token,
		PagingToken:     token,
		OperationType:   syncer.OperationPayment,
		From:            Sender,
		To:              Account,
		Amount:          "10.0000000",
		AssetType:       syncer.AssetTypeNative,
		CreatedAt:       createdAt,
		TransactionHash: "tx" + token,
		Memo:            memo,
		MemoType:        memoType(memo),
	}
}

func memoType(memo string) string {
	if memo == "" {
		return ""
	}
	return "text"
}

func tokens(t *testing.T, records []syncer.PaymentRecord) []string {
	t.Helper()
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.PagingToken)
	}
	return out
}

func collect(t *testing.T, seq iter.Seq2[syncer.PaymentRecord, error]) []syncer.PaymentRecord {
	t.Helper()
	records, err := syncer.Collect(seq)
	require.NoError(t, err)
	return records
}

// Run exercises s against the store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) syncer.Store) {
	ctx := context.Background()

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newStore(t)
		batch := []syncer.PaymentRecord{
			Payment("100", "2024-01-01T00:00:00Z", "a"),
			Payment("200", "2024-01-02T00:00:00Z", "b"),
		}

		for range 2 {
			res, err := s.UpsertBatch(ctx, Account, batch)
			require.NoError(t, err)
			assert.Equal(t, syncer.UpsertResult{Stored: 2}, res)
		}

		records := collect(t, s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{}))
		assert.Equal(t, []string{"200", "100"}, tokens(t, records))
		assert.Equal(t, Account, records[0].AccountID)
	})

	t.Run("blank paging tokens are skipped", func(t *testing.T) {
		s := newStore(t)
		res, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("100", "2024-01-01T00:00:00Z", ""),
			Payment("  ", "2024-01-01T00:00:01Z", ""),
			Payment("", "2024-01-01T00:00:02Z", ""),
		})
		require.NoError(t, err)
		assert.Equal(t, syncer.UpsertResult{Stored: 1, Skipped: 2}, res)
	})

	t.Run("memo is normalized on write", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("100", "2024-01-01T00:00:00Z", "  inv\u200b  42 "),
		})
		require.NoError(t, err)

		records := collect(t, s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{}))
		require.Len(t, records, 1)
		assert.Equal(t, "  inv\u200b  42 ", records[0].Memo)
		assert.Equal(t, "INV 42", records[0].MemoNormalized)
	})

	t.Run("empty incoming memo keeps the stored one", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{Payment("100", "2024-01-01T00:00:00Z", "INV42")})
		require.NoError(t, err)
		_, err = s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{Payment("100", "2024-01-01T00:00:00Z", "")})
		require.NoError(t, err)

		records := collect(t, s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{}))
		require.Len(t, records, 1)
		assert.Equal(t, "INV42", records[0].Memo)
		assert.Equal(t, "text", records[0].MemoType)
		assert.Equal(t, "INV42", records[0].MemoNormalized)
	})

	t.Run("same token is cached per account", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{Payment("100", "2024-01-01T00:00:00Z", "a")})
		require.NoError(t, err)
		_, err = s.UpsertBatch(ctx, OtherAccount, []syncer.PaymentRecord{Payment("100", "2024-01-01T00:00:00Z", "b")})
		require.NoError(t, err)

		mine := collect(t, s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{}))
		theirs := collect(t, s.IterateByAccountCreatedRange(ctx, OtherAccount, syncer.Range{}))
		require.Len(t, mine, 1)
		require.Len(t, theirs, 1)
		assert.Equal(t, "a", mine[0].Memo)
		assert.Equal(t, "b", theirs[0].Memo)
	})

	t.Run("created range is half open and newest first", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("1", "2024-01-01T00:00:00Z", ""),
			Payment("2", "2024-01-02T00:00:00Z", ""),
			Payment("3", "2024-01-03T00:00:00Z", ""),
			Payment("4", "2024-01-04T00:00:00Z", ""),
		})
		require.NoError(t, err)

		r := syncer.Range{From: "2024-01-02T00:00:00Z", To: "2024-01-04T00:00:00Z"}
		records := collect(t, s.IterateByAccountCreatedRange(ctx, Account, r))
		assert.Equal(t, []string{"3", "2"}, tokens(t, records))

		r.IncludeTo = true
		records = collect(t, s.IterateByAccountCreatedRange(ctx, Account, r))
		assert.Equal(t, []string{"4", "3", "2"}, tokens(t, records))

		records = collect(t, s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{From: "2024-01-03T00:00:00Z"}))
		assert.Equal(t, []string{"4", "3"}, tokens(t, records))
	})

	t.Run("sequences stop early and restart", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("1", "2024-01-01T00:00:00Z", ""),
			Payment("2", "2024-01-02T00:00:00Z", ""),
			Payment("3", "2024-01-03T00:00:00Z", ""),
		})
		require.NoError(t, err)

		seq := s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{})
		var first string
		for rec, err := range seq {
			require.NoError(t, err)
			first = rec.PagingToken
			break
		}
		assert.Equal(t, "3", first)

		// a broken loop must have released its rows, so a write goes through
		_, err = s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{Payment("4", "2024-01-04T00:00:00Z", "")})
		require.NoError(t, err)

		assert.Len(t, collect(t, seq), 4)
	})

	t.Run("exact memo query filters the window in memory", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("1", "2023-12-31T00:00:00Z", "INV42"),
			Payment("2", "2024-01-02T00:00:00Z", "INV42"),
			Payment("3", "2024-01-03T00:00:00Z", "inv42"),
			Payment("4", "2024-01-04T00:00:00Z", "INV43"),
		})
		require.NoError(t, err)

		r := syncer.Range{From: "2024-01-01T00:00:00Z", To: "2024-02-01T00:00:00Z"}
		records := collect(t, s.IterateByAccountMemoRange(ctx, Account, "INV42", r))
		assert.Equal(t, []string{"2"}, tokens(t, records))

		records = collect(t, s.IterateByAccountNormalizedMemoRange(ctx, Account, " inv42", r))
		assert.Equal(t, []string{"3", "2"}, tokens(t, records))
	})

	t.Run("range and memo substring", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("1", "2024-01-01T00:00:00Z", "ORDER-7"),
			Payment("2", "2024-01-02T00:00:00Z", "order-7"),
			Payment("3", "2024-01-03T00:00:00Z", "REF ORDER-77"),
			Payment("4", "2024-01-04T00:00:00Z", ""),
		})
		require.NoError(t, err)

		records, err := s.GetPaymentsByRangeAndMemo(ctx, Account, syncer.Range{}, "ORDER-7")
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "1"}, tokens(t, records))

		records, err = s.GetPaymentsByRangeAndMemo(ctx, Account, syncer.Range{To: "2024-01-04T00:00:00Z"}, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "2", "1"}, tokens(t, records))
	})

	t.Run("boundaries", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.GetOldestCreatedAt(ctx, Account)
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = s.GetNewestCreatedAt(ctx, Account)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("1", "2024-01-05T00:00:00Z", ""),
			Payment("2", "2024-01-01T00:00:00Z", ""),
			Payment("3", "", ""),
			Payment("4", "2024-01-09T00:00:00Z", ""),
		})
		require.NoError(t, err)

		oldest, ok, err := s.GetOldestCreatedAt(ctx, Account)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2024-01-01T00:00:00Z", oldest)

		newest, ok, err := s.GetNewestCreatedAt(ctx, Account)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2024-01-09T00:00:00Z", newest)

		_, ok, err = s.GetOldestCreatedAt(ctx, OtherAccount)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("patch memo only fills empty memos", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("1", "2024-01-01T00:00:00Z", ""),
			Payment("2", "2024-01-02T00:00:00Z", "KEEP"),
		})
		require.NoError(t, err)

		changed, err := s.PatchMemo(ctx, Account, "1", "inv42", "text")
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.PatchMemo(ctx, Account, "2", "OTHER", "text")
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = s.PatchMemo(ctx, Account, "missing", "X", "text")
		require.NoError(t, err)
		assert.False(t, changed)

		_, err = s.PatchMemo(ctx, Account, "1", " ", "text")
		require.ErrorIs(t, err, syncer.ErrInvalidInput)

		records := collect(t, s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{}))
		require.Len(t, records, 2)
		assert.Equal(t, "KEEP", records[0].Memo)
		assert.Equal(t, "inv42", records[1].Memo)
		assert.Equal(t, "text", records[1].MemoType)
		assert.Equal(t, "INV42", records[1].MemoNormalized)
	})

	t.Run("blank memos count as missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{
			Payment("1", "2024-01-01T00:00:00Z", "\t\n"),
			Payment("2", "2024-01-02T00:00:00Z", "\u200b"),
			Payment("3", "2024-01-03T00:00:00Z", "KEEP"),
		})
		require.NoError(t, err)

		for _, token := range []string{"1", "2"} {
			changed, err := s.PatchMemo(ctx, Account, token, "INV"+token, "text")
			require.NoError(t, err)
			assert.True(t, changed, token)
		}

		_, err = s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{Payment("3", "2024-01-03T00:00:00Z", " \t")})
		require.NoError(t, err)

		_, err = s.PatchMemo(ctx, Account, "3", "\u200b", "text")
		require.ErrorIs(t, err, syncer.ErrInvalidInput)

		records := collect(t, s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{}))
		require.Len(t, records, 3)
		assert.Equal(t, "KEEP", records[0].Memo)
		assert.Equal(t, "INV2", records[1].Memo)
		assert.Equal(t, "INV1", records[2].Memo)
		assert.Equal(t, "INV1", records[2].MemoNormalized)
	})

	t.Run("cursor", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.GetCursor(ctx, Account)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SetCursor(ctx, Account, "100"))
		require.NoError(t, s.SetCursor(ctx, Account, "200"))
		require.ErrorIs(t, s.SetCursor(ctx, Account, " "), syncer.ErrInvalidInput)

		token, ok, err := s.GetCursor(ctx, Account)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "200", token)

		_, ok, err = s.GetCursor(ctx, OtherAccount)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.ClearCursor(ctx, Account))
		_, ok, err = s.GetCursor(ctx, Account)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wipe", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, Account, []syncer.PaymentRecord{Payment("1", "2024-01-01T00:00:00Z", "")})
		require.NoError(t, err)
		require.NoError(t, s.SetCursor(ctx, Account, "1"))

		require.NoError(t, s.Wipe(ctx))

		assert.Empty(t, collect(t, s.IterateByAccountCreatedRange(ctx, Account, syncer.Range{})))
		_, ok, err := s.GetCursor(ctx, Account)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("account scope is required", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, "", []syncer.PaymentRecord{Payment("1", "2024-01-01T00:00:00Z", "")})
		require.ErrorIs(t, err, syncer.ErrInvalidInput)

		_, err = syncer.Collect(s.IterateByAccountCreatedRange(ctx, "", syncer.Range{}))
		require.ErrorIs(t, err, syncer.ErrInvalidInput)

		_, _, err = s.GetOldestCreatedAt(ctx, "")
		require.ErrorIs(t, err, syncer.ErrInvalidInput)

		require.ErrorIs(t, s.SetCursor(ctx, "", "1"), syncer.ErrInvalidInput)
	})
}
