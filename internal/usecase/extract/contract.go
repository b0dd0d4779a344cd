package extract

import "context"

// ObjectFetcher reads a stored source object.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) (data []byte, contentType string, err error)
}
