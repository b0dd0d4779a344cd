package citation

import (
	"context"

	"github.com/kailas-cloud/lexdex/internal/domain/drift"
)

// AnswerRecorder stores answer checks for drift monitoring.
type AnswerRecorder interface {
	RecordAnswerCheck(ctx context.Context, c drift.AnswerCheck) error
}
