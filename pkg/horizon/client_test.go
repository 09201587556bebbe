package horizon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paymentsPage = `{
  "_embedded": {
    "records": [
      {
        "id": "12884905985",
        "paging_token": "12884905985",
        "type": "payment",
        "created_at": "2024-01-02T03:04:05Z",
        "transaction_hash": "abc",
        "source_account": "GFROM",
        "from": "GFROM",
        "to": "GTO",
        "amount": "10.0000000",
        "asset_type": "native",
        "transaction": {"hash": "abc", "memo_type": "text", "memo": "INV42", "created_at": "2024-01-02T03:04:05Z"}
      }
    ]
  }
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL + "/", Timeout: time.Second}, nil)
}

func TestClientPayments(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/hal+json")
		_, _ = w.Write([]byte(paymentsPage))
	})

	payments, err := c.Payments(context.Background(), PaymentsRequest{
		AccountID: "GTO",
		Order:     "desc",
		Limit:     500,
		Cursor:    "100",
		Join:      true,
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/accounts/GTO/payments", got.URL.Path)
	assert.Equal(t, "desc", got.URL.Query().Get("order"))
	assert.Equal(t, "200", got.URL.Query().Get("limit"))
	assert.Equal(t, "100", got.URL.Query().Get("cursor"))
	assert.Equal(t, "transactions", got.URL.Query().Get("join"))

	require.Len(t, payments, 1)
	p := payments[0]
	assert.Equal(t, "12884905985", p.PagingToken)
	assert.Equal(t, "payment", p.Type)
	assert.Equal(t, "10.0000000", p.Amount)
	require.NotNil(t, p.Transaction)
	assert.Equal(t, "INV42", p.Transaction.Memo)
}

func TestClientPaymentsUnknownAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"type":"https://stellar.org/horizon-errors/not_found","title":"Resource Missing","status":404}`))
	})

	payments, err := c.Payments(context.Background(), PaymentsRequest{AccountID: "GNEW"})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestClientStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title":"Rate Limit Exceeded","status":429,"detail":"slow down"}`))
	})

	_, err := c.Transaction(context.Background(), "abc")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode())
	assert.Equal(t, "Rate Limit Exceeded", se.Title)
	assert.Equal(t, "slow down", se.Detail)
	assert.False(t, IsNotFound(err))
}

func TestClientStatusErrorWithoutProblem(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Operation(context.Background(), "1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), se.Title)
	assert.Equal(t, "horizon status 502: Bad Gateway", se.Error())
}

func TestClientTransactionAndOperation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transactions/abc":
			_, _ = w.Write([]byte(`{"hash":"abc","memo_type":"text","memo":"hi","successful":true}`))
		case "/operations/7":
			_, _ = w.Write([]byte(`{"id":"7","paging_token":"7","transaction_hash":"abc"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	tx, err := c.Transaction(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "hi", tx.Memo)
	assert.Equal(t, "text", tx.MemoType)
	assert.True(t, tx.Successful)

	op, err := c.Operation(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "abc", op.TransactionHash)

	_, err = c.Operation(context.Background(), "8")
	assert.True(t, IsNotFound(err))
}

func TestClientRespectsCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Transaction(ctx, "abc")
	require.ErrorIs(t, err, context.Canceled)
}
