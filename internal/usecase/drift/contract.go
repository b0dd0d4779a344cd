package drift

import (
	"context"

	"github.com/kailas-cloud/lexdex/internal/domain/drift"
)

// EventStore aggregates and records monitoring events.
type EventStore interface {
	WindowStats(ctx context.Context, w drift.Window) (drift.WindowStats, error)
	RecordFeedback(ctx context.Context, f drift.Feedback) error
}
