package postgres

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/eqtlab/paycache-syncer/pkg/db"
	"github.com/eqtlab/paycache-syncer/syncer"
)

var insertColumns = []string{
	"account_id",
	"paging_token",
	"id",
	"operation_type",
	"from_account",
	"to_account",
	"account",
	"source_account",
	"funder",
	"amount",
	"starting_balance",
	"asset_type",
	"asset_code",
	"asset_issuer",
	"created_at",
	"transaction_hash",
	"memo",
	"memo_type",
	"memo_normalized",
}

var selectColumns = append(
	slices.Clone(insertColumns[:len(insertColumns)-1]),
	"coalesce(memo_normalized, '') as memo_normalized",
)

// a conflicting row keeps its created_at, an incoming empty field never erases a known one
const upsertSuffix = `
	on conflict (account_id, paging_token) do update set
		id               = coalesce(nullif(excluded.id, ''), payments.id),
		operation_type   = coalesce(nullif(excluded.operation_type, ''), payments.operation_type),
		from_account     = coalesce(nullif(excluded.from_account, ''), payments.from_account),
		to_account       = coalesce(nullif(excluded.to_account, ''), payments.to_account),
		account          = coalesce(nullif(excluded.account, ''), payments.account),
		source_account   = coalesce(nullif(excluded.source_account, ''), payments.source_account),
		funder           = coalesce(nullif(excluded.funder, ''), payments.funder),
		amount           = coalesce(nullif(excluded.amount, ''), payments.amount),
		starting_balance = coalesce(nullif(excluded.starting_balance, ''), payments.starting_balance),
		asset_type       = coalesce(nullif(excluded.asset_type, ''), payments.asset_type),
		asset_code       = coalesce(nullif(excluded.asset_code, ''), payments.asset_code),
		asset_issuer     = coalesce(nullif(excluded.asset_issuer, ''), payments.asset_issuer),
		created_at       = coalesce(nullif(payments.created_at, ''), excluded.created_at),
		transaction_hash = coalesce(nullif(excluded.transaction_hash, ''), payments.transaction_hash),
		memo             = case when excluded.memo_normalized <> '' then excluded.memo else payments.memo end,
		memo_type        = case when excluded.memo_normalized <> '' then excluded.memo_type else payments.memo_type end,
		memo_normalized  = case when excluded.memo_normalized <> '' then excluded.memo_normalized else payments.memo_normalized end
`

func (s *Storage) UpsertBatch(ctx context.Context, accountID string, records []syncer.PaymentRecord) (syncer.UpsertResult, error) {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return syncer.UpsertResult{}, err
	}

	valid, skipped := syncer.PrepareBatch(accountID, records)
	res := syncer.UpsertResult{Skipped: skipped}
	if len(valid) == 0 {
		return res, nil
	}

	err := s.db.RunInTransaction(ctx, func(ctx context.Context, txDB *db.DB) error {
		for _, chunk := range db.Chunks(mergeDuplicates(valid), len(insertColumns)) {
			query := sq.Insert("payments").Columns(insertColumns...).Suffix(upsertSuffix)
			for _, r := range chunk {
				query = query.Values(
					r.AccountID, r.PagingToken, r.ID, string(r.OperationType), r.From, r.To, r.Account, r.SourceAccount,
					r.Funder, r.Amount, r.StartingBalance, r.AssetType, r.AssetCode, r.AssetIssuer, r.CreatedAt, r.TransactionHash,
					r.Memo, r.MemoType, r.MemoNormalized,
				)
			}
			if err := txDB.Insert(ctx, query, nil); err != nil {
				return fmt.Errorf("insert payments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return syncer.UpsertResult{}, fmt.Errorf("%w: upsert batch: %w", syncer.ErrStoreWrite, err)
	}

	res.Stored = len(valid)
	return res, nil
}

// mergeDuplicates folds repeated paging tokens of one batch into a single row, since one insert statement
// can not update the same row twice. The later record wins, except that it never erases a known memo.
func mergeDuplicates(records []syncer.PaymentRecord) []syncer.PaymentRecord {
	index := make(map[string]int, len(records))
	out := make([]syncer.PaymentRecord, 0, len(records))
	for _, r := range records {
		i, ok := index[r.PagingToken]
		if !ok {
			index[r.PagingToken] = len(out)
			out = append(out, r)
			continue
		}
		if r.MemoNormalized == "" {
			r.Memo, r.MemoType, r.MemoNormalized = out[i].Memo, out[i].MemoType, out[i].MemoNormalized
		}
		if out[i].CreatedAt != "" {
			r.CreatedAt = out[i].CreatedAt
		}
		out[i] = r
	}
	return out
}

func (s *Storage) PatchMemo(ctx context.Context, accountID, pagingToken, memo, memoType string) (bool, error) {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return false, err
	}
	if strings.TrimSpace(pagingToken) == "" || syncer.NormalizeMemo(memo) == "" {
		return false, fmt.Errorf("%w: patch memo needs a paging token and a memo", syncer.ErrInvalidInput)
	}

	query, args, err := sq.Update("payments").
		Set("memo", memo).
		Set("memo_type", memoType).
		Set("memo_normalized", syncer.NormalizeMemo(memo)).
		Where(sq.Eq{"account_id": accountID, "paging_token": pagingToken}).
		Where("coalesce(memo_normalized, '') = ''").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%w: build patch memo query: %w", syncer.ErrStoreWrite, err)
	}

	n, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: patch memo %s: %w", syncer.ErrStoreWrite, pagingToken, err)
	}

	return n > 0, nil
}

func (s *Storage) IterateByAccountCreatedRange(ctx context.Context, accountID string, r syncer.Range) iter.Seq2[syncer.PaymentRecord, error] {
	return s.iterate(ctx, accountID, withRange(selectPayments(accountID), r), nil)
}

func (s *Storage) IterateByAccountMemoRange(ctx context.Context, accountID string, memo string, r syncer.Range) iter.Seq2[syncer.PaymentRecord, error] {
	q := selectPayments(accountID).Where(sq.Eq{"memo": memo})
	return s.iterate(ctx, accountID, q, func(rec syncer.PaymentRecord) bool {
		return r.Contains(rec.CreatedAt)
	})
}

func (s *Storage) IterateByAccountNormalizedMemoRange(ctx context.Context, accountID string, memo string, r syncer.Range) iter.Seq2[syncer.PaymentRecord, error] {
	q := selectPayments(accountID).Where(sq.Eq{"memo_normalized": syncer.NormalizeMemo(memo)})
	return s.iterate(ctx, accountID, withRange(q, r), nil)
}

func (s *Storage) GetPaymentsByRangeAndMemo(ctx context.Context, accountID string, r syncer.Range, memoSubstr string) ([]syncer.PaymentRecord, error) {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return nil, err
	}

	query := withRange(selectPayments(accountID), r)
	if memoSubstr != "" {
		query = query.Where("strpos(memo, ?) > 0", memoSubstr)
	}

	var records []syncer.PaymentRecord
	err := s.db.Select(ctx, query, db.ScanAll(&records, paymentScanArgs))
	if err != nil && !db.IsNoRows(err) {
		return nil, fmt.Errorf("%w: select payments: %w", syncer.ErrStoreRead, err)
	}

	return records, nil
}

func (s *Storage) GetOldestCreatedAt(ctx context.Context, accountID string) (string, bool, error) {
	return s.boundary(ctx, accountID, "min")
}

func (s *Storage) GetNewestCreatedAt(ctx context.Context, accountID string) (string, bool, error) {
	return s.boundary(ctx, accountID, "max")
}

func (s *Storage) boundary(ctx context.Context, accountID, agg string) (string, bool, error) {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return "", false, err
	}

	query := sq.Select(agg+"(created_at)").
		From("payments").
		Where(sq.Eq{"account_id": accountID}).
		Where(sq.NotEq{"created_at": ""})

	var createdAt *string
	if err := s.db.Select(ctx, query, db.ScanOnce(&createdAt)); err != nil {
		return "", false, fmt.Errorf("%w: select %s created_at: %w", syncer.ErrStoreRead, agg, err)
	}
	if createdAt == nil {
		return "", false, nil
	}

	return *createdAt, true, nil
}

func selectPayments(accountID string) sq.SelectBuilder {
	return sq.Select(selectColumns...).
		From("payments").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("created_at desc", "paging_token desc")
}

func withRange(q sq.SelectBuilder, r syncer.Range) sq.SelectBuilder {
	if r.From != "" {
		q = q.Where(sq.GtOrEq{"created_at": r.From})
	}
	if r.To != "" {
		if r.IncludeTo {
			q = q.Where(sq.LtOrEq{"created_at": r.To})
		} else {
			q = q.Where(sq.Lt{"created_at": r.To})
		}
	}
	return q
}

// iterate runs q when the sequence is ranged over and closes the rows as soon as the loop ends.
func (s *Storage) iterate(
	ctx context.Context,
	accountID string,
	q sq.SelectBuilder,
	keep func(syncer.PaymentRecord) bool,
) iter.Seq2[syncer.PaymentRecord, error] {
	return func(yield func(syncer.PaymentRecord, error) bool) {
		if err := syncer.ValidateAccountID(accountID); err != nil {
			yield(syncer.PaymentRecord{}, err)
			return
		}

		rows, err := s.db.Rows(ctx, q)
		if err != nil {
			yield(syncer.PaymentRecord{}, fmt.Errorf("%w: %w", syncer.ErrStoreRead, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec syncer.PaymentRecord
			if err := rows.Scan(paymentScanArgs(&rec)...); err != nil {
				yield(syncer.PaymentRecord{}, fmt.Errorf("%w: scan payment: %w", syncer.ErrStoreRead, err))
				return
			}
			if keep != nil && !keep(rec) {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(syncer.PaymentRecord{}, fmt.Errorf("%w: read payments: %w", syncer.ErrStoreRead, err))
		}
	}
}

func paymentScanArgs(r *syncer.PaymentRecord) db.ScanArgs {
	return db.ScanArgs{
		&r.AccountID, &r.PagingToken, &r.ID, (*string)(&r.OperationType), &r.From, &r.To, &r.Account, &r.SourceAccount,
		&r.Funder, &r.Amount, &r.StartingBalance, &r.AssetType, &r.AssetCode, &r.AssetIssuer, &r.CreatedAt, &r.TransactionHash,
		&r.Memo, &r.MemoType, &r.MemoNormalized,
	}
}
