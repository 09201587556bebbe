package syncer

import (
	"context"
	"fmt"

	"github.com/eqtlab/paycache-syncer/pkg/horizon"
)

// HorizonLedger reads the payment feed from a Horizon server.
type HorizonLedger struct {
	client *horizon.Client
}

func NewHorizonLedger(c *horizon.Client) *HorizonLedger {
	return &HorizonLedger{client: c}
}

func (l *HorizonLedger) Payments(ctx context.Context, req PageRequest) ([]PaymentRecord, error) {
	payments, err := l.client.Payments(ctx, horizon.PaymentsRequest{
		AccountID: req.AccountID,
		Order:     string(req.Order),
		Limit:     req.Limit,
		Cursor:    req.Cursor,
		Join:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("horizon payments: %w", err)
	}
	return castPayments(payments, req.AccountID), nil
}

func (l *HorizonLedger) TransactionMemo(ctx context.Context, hash string) (Memo, error) {
	tx, err := l.client.Transaction(ctx, hash)
	if err != nil {
		return Memo{}, fmt.Errorf("horizon transaction: %w", err)
	}
	return Memo{Value: tx.Memo, Type: tx.MemoType}, nil
}

func (l *HorizonLedger) OperationTransactionHash(ctx context.Context, operationID string) (string, error) {
	op, err := l.client.Operation(ctx, operationID)
	if err != nil {
		return "", fmt.Errorf("horizon operation: %w", err)
	}
	return op.TransactionHash, nil
}

// castPayments keeps the feed order.
func castPayments(in []horizon.Payment, accountID string) []PaymentRecord {
	out := make([]PaymentRecord, 0, len(in))
	for _, p := range in {
		rec := PaymentRecord{
			AccountID:       accountID,
			ID:              p.ID,
			PagingToken:     p.PagingToken,
			OperationType:   OperationType(p.Type),
			From:            p.From,
			To:              p.To,
			Account:         p.Account,
			SourceAccount:   p.SourceAccount,
			Funder:          p.Funder,
			Amount:          p.Amount,
			StartingBalance: p.StartingBalance,
			AssetType:       p.AssetType,
			AssetCode:       p.AssetCode,
			AssetIssuer:     p.AssetIssuer,
			CreatedAt:       p.CreatedAt,
			TransactionHash: p.TransactionHash,
			Memo:            p.Memo,
		}
		if tx := p.Transaction; tx != nil {
			if rec.Memo == "" {
				rec.Memo = tx.Memo
			}
			rec.MemoType = tx.MemoType
			if rec.CreatedAt == "" {
				rec.CreatedAt = tx.CreatedAt
			}
			if rec.TransactionHash == "" {
				rec.TransactionHash = tx.Hash
			}
		}
		if rec.OperationType == OperationCreateAccount && rec.Funder == "" {
			rec.Funder = rec.SourceAccount
		}
		out = append(out, rec)
	}
	return out
}
