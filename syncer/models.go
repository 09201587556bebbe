package syncer

import (
	"fmt"
	"strings"
	"time"
)

// ISOLayout is the layout of every timestamp produced locally. Horizon emits the same layout,
// so values from both sources compare correctly as strings.
const ISOLayout = "2006-01-02T15:04:05Z"

type OperationType string

const (
	OperationPayment                  OperationType = "payment"
	OperationPathPaymentStrictReceive OperationType = "path_payment_strict_receive"
	OperationPathPaymentStrictSend    OperationType = "path_payment_strict_send"
	OperationCreateAccount            OperationType = "create_account"
	OperationAccountMerge             OperationType = "account_merge"
)

// IsPathPayment reports whether t is one of the path payment variants.
func (t OperationType) IsPathPayment() bool {
	return t == OperationPathPaymentStrictReceive || t == OperationPathPaymentStrictSend
}

const AssetTypeNative = "native"

// PaymentRecord is one cached ledger operation relevant to an account.
type PaymentRecord struct {
	AccountID       string // local account this row was cached for
	ID              string // remote operation id
	PagingToken     string
	OperationType   OperationType
	From            string
	To              string
	Account         string // create_account target
	SourceAccount   string
	Funder          string
	Amount          string
	StartingBalance string
	AssetType       string
	AssetCode       string
	AssetIssuer     string
	CreatedAt       string
	TransactionHash string
	Memo            string
	MemoType        string
	MemoNormalized  string
}

// IsNative reports whether the record moves the native asset. Account creation always does.
func (r PaymentRecord) IsNative() bool {
	return r.AssetType == AssetTypeNative || r.OperationType == OperationCreateAccount
}

// Value returns the moved amount: starting balance for account creation, amount otherwise.
func (r PaymentRecord) Value() string {
	if r.OperationType == OperationCreateAccount {
		return r.StartingBalance
	}
	return r.Amount
}

// HasMemo reports whether the record carries a memo that survives normalization.
func (r PaymentRecord) HasMemo() bool {
	return NormalizeMemo(r.Memo) != ""
}

// OperationRef returns the id used to look the originating operation up remotely.
// Horizon operation ids are equal to their paging tokens, so the token is a valid fallback.
func (r PaymentRecord) OperationRef() string {
	if r.ID != "" {
		return r.ID
	}
	return r.PagingToken
}

// Memo is the memo of a ledger transaction.
type Memo struct {
	Value string
	Type  string
}

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// PageRequest asks the remote feed for one page of an account's payments.
type PageRequest struct {
	AccountID string
	Order     Order
	Limit     int
	Cursor    string // paging token to continue after, empty for the first page
}

// Range is a created_at window. Empty bounds are unbounded. From is inclusive; To is exclusive
// unless IncludeTo is set.
type Range struct {
	From      string
	To        string
	IncludeTo bool
}

// Contains reports whether createdAt falls into the window.
func (r Range) Contains(createdAt string) bool {
	if r.From != "" && createdAt < r.From {
		return false
	}
	if r.To == "" {
		return true
	}
	if r.IncludeTo {
		return createdAt <= r.To
	}
	return createdAt < r.To
}

// UpsertResult tells how many records of a batch were written and how many were dropped by validation.
type UpsertResult struct {
	Stored  int
	Skipped int
}

// NormalizeISO renders a date (YYYY-MM-DD) or an RFC 3339 timestamp in ISOLayout, so it compares
// correctly against cached created_at values. Sub-second precision is dropped. Empty stays empty.
func NormalizeISO(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return FormatISO(t), nil
		}
	}
	return "", fmt.Errorf("%w: %q is neither a date nor an RFC 3339 timestamp", ErrInvalidInput, value)
}

// FormatISO renders t in ISOLayout.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// minISO returns the earlier of two timestamps, treating empty as absent.
func minISO(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if a < b {
		return a
	}
	return b
}
