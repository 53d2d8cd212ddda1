package backend

import (
	"context"
	"log/slog"

	"github.com/regwatch/regwatch/internal/listing"
)

// Decoder turns a raw response body into records.
type Decoder[T any] func(raw []byte) ([]T, error)

// NewFetcher binds endpoint and decode to the listing fetch contract. Each call hits the
// backend; nothing is cached.
func NewFetcher[T any](client *Client, endpoint string, decode Decoder[T]) listing.Fetcher[T] {
	return listing.FetcherFunc[T](func(ctx context.Context, q listing.Query) (listing.Page[T], error) {
		body, err := client.Get(ctx, endpoint, QueryParams(q))
		if err != nil {
			return listing.Page[T]{}, err
		}
		records, err := decode(body)
		if err != nil {
			return listing.Page[T]{}, &listing.DecodeError{Err: err}
		}
		if q.PageSize > 0 && len(records) > q.PageSize {
			client.logger.Warn("backend returned more rows than requested",
				slog.String("endpoint", endpoint),
				slog.Int("length", q.PageSize),
				slog.Int("returned", len(records)))
			records = records[:q.PageSize]
		}
		return listing.NewPage(records, q.Offset), nil
	})
}
