package client

import (
	"context"
	"time"
)

const (
	DefaultRetryAttempts = 60
	DefaultRetryDelay    = time.Second
)

// Retry calls fn until it succeeds, attempts run out or ctx is done, sleeping
// delay between calls. It returns the last error. Zero attempts or delay use
// the defaults.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var (
		out T
		err error
	)

	for i := 0; i < attempts; i++ {
		if out, err = fn(ctx); err == nil {
			return out, nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return out, err
		}
	}

	return out, err
}
