package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqtlab/paycache-syncer/pkg/horizon"
)

func TestCastPayments(t *testing.T) {
	in := []horizon.Payment{
		{
			ID:              "1",
			PagingToken:     "1",
			Type:            "payment",
			From:            "GFROM",
			To:              "GTO",
			Amount:          "1.0000000",
			AssetType:       "native",
			TransactionHash: "",
			Transaction:     &horizon.Transaction{Hash: "tx1", Memo: "INV42", MemoType: "text", CreatedAt: "2024-01-01T00:00:00Z"},
		},
		{
			ID:              "2",
			PagingToken:     "2",
			Type:            "create_account",
			SourceAccount:   "GFUNDER",
			Account:         "GTO",
			StartingBalance: "5.0000000",
			CreatedAt:       "2024-01-02T00:00:00Z",
			TransactionHash: "tx2",
		},
	}

	out := castPayments(in, "GTO")
	require.Len(t, out, 2)

	assert.Equal(t, "GTO", out[0].AccountID)
	assert.Equal(t, OperationPayment, out[0].OperationType)
	assert.Equal(t, "INV42", out[0].Memo)
	assert.Equal(t, "text", out[0].MemoType)
	assert.Equal(t, "tx1", out[0].TransactionHash)
	assert.Equal(t, "2024-01-01T00:00:00Z", out[0].CreatedAt)

	assert.Equal(t, OperationCreateAccount, out[1].OperationType)
	assert.Equal(t, "GFUNDER", out[1].Funder)
	assert.Empty(t, out[1].Memo)
	assert.Equal(t, "5.0000000", out[1].Value())
}

func TestHorizonLedger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/GTO/payments":
			assert.Equal(t, "transactions", r.URL.Query().Get("join"))
			assert.Equal(t, "asc", r.URL.Query().Get("order"))
			_, _ = w.Write([]byte(`{"_embedded":{"records":[{"id":"9","paging_token":"9","type":"payment","to":"GTO"}]}}`))
		case "/transactions/tx9":
			_, _ = w.Write([]byte(`{"hash":"tx9","memo_type":"id","memo":"42"}`))
		case "/operations/9":
			_, _ = w.Write([]byte(`{"id":"9","transaction_hash":"tx9"}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	t.Cleanup(srv.Close)

	l := NewHorizonLedger(horizon.New(horizon.Config{URL: srv.URL}, nil))
	ctx := context.Background()

	records, err := l.Payments(ctx, PageRequest{AccountID: "GTO", Order: OrderAsc, Limit: 10, Cursor: "8"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "9", records[0].PagingToken)

	hash, err := l.OperationTransactionHash(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, "tx9", hash)

	memo, err := l.TransactionMemo(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, Memo{Value: "42", Type: "id"}, memo)

	_, err = l.TransactionMemo(ctx, "missing")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}
