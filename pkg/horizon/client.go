package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const MaxLimit = 200

type Config struct {
	URL     string        `env:"URL, default=https://horizon.stellar.org"`
	Timeout time.Duration `env:"TIMEOUT, default=30s"`
	RPS     float64       `env:"RPS, default=10"` // Requests per second allowed towards Horizon
	Burst   int           `env:"BURST, default=10"`
}

// Client is a read-only Horizon REST client. It paces requests but never retries them.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client. A nil httpClient gets a default one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// StatusError is a non-2xx Horizon response.
type StatusError struct {
	Status int
	Title  string
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("horizon status %d: %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("horizon status %d: %s", e.Status, e.Title)
}

func (e *StatusError) StatusCode() int {
	return e.Status
}

// IsNotFound reports whether err is a Horizon 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

type PaymentsRequest struct {
	AccountID string
	Order     string // asc or desc
	Limit     int    // clamped to [1, MaxLimit]
	Cursor    string
	Join      bool // inline the owning transaction (and so its memo)
}

// Payments returns one page of the account's payments. An account Horizon does not know yet
// has no history, which is reported as an empty page.
func (c *Client) Payments(ctx context.Context, req PaymentsRequest) ([]Payment, error) {
	q := url.Values{}
	if req.Order != "" {
		q.Set("order", req.Order)
	}
	q.Set("limit", strconv.Itoa(min(max(req.Limit, 1), MaxLimit)))
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Join {
		q.Set("join", "transactions")
	}

	var p page[Payment]
	err := c.get(ctx, "/accounts/"+url.PathEscape(req.AccountID)+"/payments", q, &p)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payments of %s: %w", req.AccountID, err)
	}
	return p.Embedded.Records, nil
}

func (c *Client) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	var tx Transaction
	if err := c.get(ctx, "/transactions/"+url.PathEscape(hash), nil, &tx); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	}
	return &tx, nil
}

func (c *Client) Operation(ctx context.Context, id string) (*Operation, error) {
	var op Operation
	if err := c.get(ctx, "/operations/"+url.PathEscape(id), nil, &op); err != nil {
		return nil, fmt.Errorf("get operation %s: %w", id, err)
	}
	return &op, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/hal+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var p problem
		if json.Unmarshal(body, &p) == nil && p.Title != "" {
			se.Title = p.Title
			se.Detail = p.Detail
		}
		return se
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
