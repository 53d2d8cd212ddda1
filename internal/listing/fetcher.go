package listing

import (
	"context"
	"errors"
	"time"
)

// Fetcher loads one page of records for a query. Implementations must not cache.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, query Query) (Page[T], error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, query Query) (Page[T], error)

// Fetch calls f.
func (f FetcherFunc[T]) Fetch(ctx context.Context, query Query) (Page[T], error) {
	return f(ctx, query)
}

// Retrying wraps fetcher with a bounded retry on FetchError responses with a 5xx status
// and on transport errors. Decode errors and context cancellation are returned at once.
func Retrying[T any](fetcher Fetcher[T], attempts int, delay time.Duration) Fetcher[T] {
	if attempts <= 1 {
		return fetcher
	}
	return FetcherFunc[T](func(ctx context.Context, query Query) (Page[T], error) {
		var lastErr error
		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return Page[T]{}, ctx.Err()
				case <-time.After(delay):
				}
			}
			page, err := fetcher.Fetch(ctx, query)
			if err == nil {
				return page, nil
			}
			lastErr = err
			if !retryable(ctx, err) {
				return Page[T]{}, err
			}
		}
		return Page[T]{}, lastErr
	})
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode >= 500
	}
	return true
}
