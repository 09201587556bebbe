package syncer

import (
	"context"
	"fmt"
	"iter"

	"github.com/shopspring/decimal"
)

// Collect drains a record sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[PaymentRecord, error]) ([]PaymentRecord, error) {
	var out []PaymentRecord
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type NativeSum struct {
	Total   decimal.Decimal
	Matches int
	Scanned int
}

// SumIncomingNative sums native-asset amounts paid to accountID inside r whose memo contains memo.
// It reads the local cache only.
func SumIncomingNative(ctx context.Context, q Querier, accountID, memo string, r Range) (NativeSum, error) {
	var sum NativeSum
	if err := ValidateAccountID(accountID); err != nil {
		return sum, err
	}
	if memo == "" {
		return sum, fmt.Errorf("%w: empty memo", ErrInvalidInput)
	}
	if r.From != "" && r.To != "" && r.From > r.To {
		return sum, fmt.Errorf("%w: range starts after it ends", ErrInvalidInput)
	}

	records, err := q.GetPaymentsByRangeAndMemo(ctx, accountID, r, memo)
	if err != nil {
		return sum, err
	}

	for _, rec := range records {
		sum.Scanned++
		if !rec.IsNative() || incomingTo(rec) != accountID {
			continue
		}
		amount, err := decimal.NewFromString(rec.Value())
		if err != nil {
			continue
		}
		sum.Total = sum.Total.Add(amount)
		sum.Matches++
	}
	return sum, nil
}

func incomingTo(rec PaymentRecord) string {
	if rec.OperationType == OperationCreateAccount {
		return rec.Account
	}
	return rec.To
}
