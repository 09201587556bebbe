package syncer

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error leaving a store or the engine wraps exactly one of these next to its cause,
// so callers can use errors.Is to decide whether to retry (write/open/network) or treat a read as "no data yet".
var (
	ErrStoreOpen    = errors.New("store open failed")
	ErrStoreWrite   = errors.New("store write failed")
	ErrStoreRead    = errors.New("store read failed")
	ErrInvalidInput = errors.New("invalid input")
	ErrNetwork      = errors.New("network failed")
	ErrAborted      = errors.New("aborted")
	ErrSyncFailed   = errors.New("sync failed")
)

// kindError joins an error kind and its cause: "<kind>: <op>: <cause>".
func kindError(kind error, op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", kind, op, cause)
}

// abortedError converts a context error into ErrAborted, keeping the cause.
func abortedError(op string, cause error) error {
	return kindError(ErrAborted, op, cause)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// syncFailed wraps an unrecoverable failure of a sync call. Cancellation and invalid input keep their own kind.
func syncFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAborted) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	if isContextErr(err) {
		return abortedError(op, err)
	}
	return kindError(ErrSyncFailed, op, err)
}

// ValidateAccountID rejects an empty account scope with ErrInvalidInput.
func ValidateAccountID(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: empty account id", ErrInvalidInput)
	}
	return nil
}
