package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type ctxKey struct{}

// request carries the request logger and the fields handlers add to the
// request's canonical log line.
type request struct {
	logger *zap.Logger

	mu     sync.Mutex
	fields []zap.Field
}

// WithRequest starts a request scope: logger becomes the request logger and
// Annotate collects fields for the closing log line.
func WithRequest(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &request{logger: logger})
}

// FromContext returns the request logger, or a no-op logger outside a request.
func FromContext(ctx context.Context) *zap.Logger {
	if r, ok := ctx.Value(ctxKey{}).(*request); ok && r.logger != nil {
		return r.logger
	}
	return zap.NewNop()
}

// Annotate adds fields such as document_id or provider to the request's log
// line. Later fields with the same key win when the line is encoded.
func Annotate(ctx context.Context, fields ...zap.Field) {
	r, ok := ctx.Value(ctxKey{}).(*request)
	if !ok {
		return
	}
	r.mu.Lock()
	r.fields = append(r.fields, fields...)
	r.mu.Unlock()
}

// Annotations returns a copy of the fields added so far.
func Annotations(ctx context.Context) []zap.Field {
	r, ok := ctx.Value(ctxKey{}).(*request)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]zap.Field(nil), r.fields...)
}
