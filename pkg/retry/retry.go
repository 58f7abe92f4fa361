// Package retry runs an operation repeatedly with a fixed delay between
// attempts. It is used both for the PDU handshake (bounded on the initial
// connect, unbounded on reconnect) and for request-level retries in the
// daemon.
package retry

import (
	"context"
	"errors"
	"time"
)

// Unbounded is passed as the attempt limit to retry forever.
const Unbounded = 0

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as non-retryable. Do returns the wrapped error
// immediately when an operation returns it.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Do calls op until it succeeds, returns an error wrapped with Stop, the
// context is done, or maxAttempts attempts have been made. A maxAttempts
// of Unbounded (or any value <= 0) means no limit. The attempt number
// passed to op starts at 1.
//
// The last error from op is returned when attempts run out.
func Do(ctx context.Context, maxAttempts int, delay time.Duration, op func(attempt int) error) error {
	_, err := DoValue(ctx, maxAttempts, delay, func(attempt int) (struct{}, error) {
		return struct{}{}, op(attempt)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, maxAttempts int, delay time.Duration, op func(attempt int) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(attempt)
		if err == nil {
			return v, nil
		}

		var stop *stopError
		if errors.As(err, &stop) {
			return zero, stop.err
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return zero, err
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
