package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/eqtlab/paycache-syncer/syncer"
)

var paymentColumns = []string{
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
	"COALESCE(memo_normalized, '') AS memo_normalized",
}

// A conflicting row keeps its created_at, and an incoming empty field never erases a known one.
const upsertPaymentQuery = `
	INSERT INTO payments (
		account_id, paging_token, id, operation_type, from_account, to_account, account, source_account,
		funder, amount, starting_balance, asset_type, asset_code, asset_issuer, created_at, transaction_hash,
		memo, memo_type, memo_normalized
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (account_id, paging_token) DO UPDATE SET
		id               = COALESCE(NULLIF(excluded.id, ''), payments.id),
		operation_type   = COALESCE(NULLIF(excluded.operation_type, ''), payments.operation_type),
		from_account     = COALESCE(NULLIF(excluded.from_account, ''), payments.from_account),
		to_account       = COALESCE(NULLIF(excluded.to_account, ''), payments.to_account),
		account          = COALESCE(NULLIF(excluded.account, ''), payments.account),
		source_account   = COALESCE(NULLIF(excluded.source_account, ''), payments.source_account),
		funder           = COALESCE(NULLIF(excluded.funder, ''), payments.funder),
		amount           = COALESCE(NULLIF(excluded.amount, ''), payments.amount),
		starting_balance = COALESCE(NULLIF(excluded.starting_balance, ''), payments.starting_balance),
		asset_type       = COALESCE(NULLIF(excluded.asset_type, ''), payments.asset_type),
		asset_code       = COALESCE(NULLIF(excluded.asset_code, ''), payments.asset_code),
		asset_issuer     = COALESCE(NULLIF(excluded.asset_issuer, ''), payments.asset_issuer),
		created_at       = COALESCE(NULLIF(payments.created_at, ''), excluded.created_at),
		transaction_hash = COALESCE(NULLIF(excluded.transaction_hash, ''), payments.transaction_hash),
		memo             = CASE WHEN excluded.memo_normalized <> '' THEN excluded.memo ELSE payments.memo END,
		memo_type        = CASE WHEN excluded.memo_normalized <> '' THEN excluded.memo_type ELSE payments.memo_type END,
		memo_normalized  = CASE WHEN excluded.memo_normalized <> '' THEN excluded.memo_normalized ELSE payments.memo_normalized END
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

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertPaymentQuery)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range valid {
			_, err := stmt.ExecContext(ctx,
				r.AccountID, r.PagingToken, r.ID, string(r.OperationType), r.From, r.To, r.Account, r.SourceAccount,
				r.Funder, r.Amount, r.StartingBalance, r.AssetType, r.AssetCode, r.AssetIssuer, r.CreatedAt, r.TransactionHash,
				r.Memo, r.MemoType, r.MemoNormalized,
			)
			if err != nil {
				return fmt.Errorf("upsert payment %s: %w", r.PagingToken, err)
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
		Where("COALESCE(memo_normalized, '') = ''").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%w: build patch memo query: %w", syncer.ErrStoreWrite, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: patch memo %s: %w", syncer.ErrStoreWrite, pagingToken, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: patch memo rows affected: %w", syncer.ErrStoreWrite, err)
	}

	return n > 0, nil
}

func (s *Storage) IterateByAccountCreatedRange(ctx context.Context, accountID string, r syncer.Range) iter.Seq2[syncer.PaymentRecord, error] {
	q := selectPayments(accountID)
	return s.iterate(ctx, accountID, withRange(q, r), nil)
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
	q := withRange(selectPayments(accountID), r)
	if memoSubstr != "" {
		q = q.Where("instr(memo, ?) > 0", memoSubstr)
	}
	return syncer.Collect(s.iterate(ctx, accountID, q, nil))
}

func (s *Storage) GetOldestCreatedAt(ctx context.Context, accountID string) (string, bool, error) {
	return s.boundary(ctx, accountID, "MIN")
}

func (s *Storage) GetNewestCreatedAt(ctx context.Context, accountID string) (string, bool, error) {
	return s.boundary(ctx, accountID, "MAX")
}

// boundary reads the first or last created_at of the time index, rows without a timestamp are ignored.
func (s *Storage) boundary(ctx context.Context, accountID, agg string) (string, bool, error) {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return "", false, err
	}

	query, args, err := sq.Select(agg+"(created_at)").
		From("payments").
		Where(sq.Eq{"account_id": accountID}).
		Where(sq.NotEq{"created_at": ""}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("%w: build boundary query: %w", syncer.ErrStoreRead, err)
	}

	var createdAt sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&createdAt); err != nil {
		return "", false, fmt.Errorf("%w: select %s created_at: %w", syncer.ErrStoreRead, strings.ToLower(agg), err)
	}
	if !createdAt.Valid {
		return "", false, nil
	}

	return createdAt.String, true, nil
}

func selectPayments(accountID string) sq.SelectBuilder {
	return sq.Select(paymentColumns...).
		From("payments").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("created_at DESC", "paging_token DESC")
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

// iterate runs q when the sequence is ranged over. Rows are closed when the loop ends or breaks.
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

		query, args, err := q.ToSql()
		if err != nil {
			yield(syncer.PaymentRecord{}, fmt.Errorf("%w: build select query: %w", syncer.ErrStoreRead, err))
			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(syncer.PaymentRecord{}, fmt.Errorf("%w: select payments: %w", syncer.ErrStoreRead, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanPayment(rows)
			if err != nil {
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

func scanPayment(rows *sql.Rows) (syncer.PaymentRecord, error) {
	var (
		r      syncer.PaymentRecord
		opType string
	)
	err := rows.Scan(
		&r.AccountID, &r.PagingToken, &r.ID, &opType, &r.From, &r.To, &r.Account, &r.SourceAccount,
		&r.Funder, &r.Amount, &r.StartingBalance, &r.AssetType, &r.AssetCode, &r.AssetIssuer, &r.CreatedAt, &r.TransactionHash,
		&r.Memo, &r.MemoType, &r.MemoNormalized,
	)
	r.OperationType = syncer.OperationType(opType)
	return r, err
}
