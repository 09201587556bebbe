package syncer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries remote calls with exponential backoff. The zero value makes a single attempt.
type RetryPolicy struct {
	MaxAttempts int           // attempts including the first one
	BaseDelay   time.Duration // first backoff delay
	MaxDelay    time.Duration // backoff delay cap
	Multiplier  float64       // delay growth per attempt, 2 when unset
	Retryable   func(error) bool
	Notify      func(err error, next time.Duration)
}

// Do runs op until it succeeds, returns a non-retryable error, or attempts run out.
// Failures come back as ErrNetwork, cancellation as ErrAborted.
func (p RetryPolicy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	b := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		b.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Multiplier = 2.0
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0 // bounded by attempts only

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx),
		p.Notify,
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return abortedError(name, err)
	}
	return kindError(ErrNetwork, name, err)
}

type statusCoder interface {
	StatusCode() int
}

// IsTransient reports whether a remote failure is worth retrying: rate limiting, server errors
// and transport errors are; any other status (client errors) and cancellation are not.
func IsTransient(err error) bool {
	if err == nil || isContextErr(err) {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return true
}
