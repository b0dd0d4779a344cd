package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	dombatch "github.com/kailas-cloud/lexdex/internal/domain/batch"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
	"github.com/kailas-cloud/lexdex/internal/metrics"
)

// MaxBatchSize is the maximum number of ids per bulk request.
const MaxBatchSize = 100

// Action is an operator bulk action.
type Action string

// Bulk actions.
const (
	ActionReclassify Action = "reclassify"
	ActionApprove    Action = "approve"
	ActionRevoke     Action = "revoke"
	ActionReprocess  Action = "reprocess"
)

// Request is a bulk admin request. Category is required for reclassify.
type Request struct {
	Action   Action
	IDs      []string
	Category string
}

// Service applies operator actions to many documents, one transaction each.
type Service struct {
	docs         DocumentMutator
	logger       *zap.Logger
	maxBatchSize int
	now          func() time.Time
}

// New creates a bulk admin service.
func New(docs DocumentMutator, logger *zap.Logger) *Service {
	return &Service{docs: docs, logger: logger, maxBatchSize: MaxBatchSize, now: time.Now}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Apply runs req against every id. An unknown action or category fails the
// whole request; everything else is reported per id.
func (s *Service) Apply(ctx context.Context, req Request) ([]dombatch.Result, error) {
	var category knowledge.Category
	switch req.Action {
	case ActionApprove, ActionRevoke, ActionReprocess:
	case ActionReclassify:
		c, ok := knowledge.ParseCategory(req.Category)
		if !ok || req.Category == "" {
			return nil, fmt.Errorf("reclassify needs a known category, got %q: %w", req.Category, domain.ErrValidation)
		}
		category = c
	default:
		return nil, fmt.Errorf("unknown action %q: %w", req.Action, domain.ErrValidation)
	}

	results := make([]dombatch.Result, len(req.IDs))
	if len(req.IDs) > s.maxBatchSize {
		for i, id := range req.IDs {
			results[i] = dombatch.NewError(id, fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrValidation))
		}
		return results, nil
	}

	for i, id := range req.IDs {
		var applied []knowledge.Transition
		err := s.docs.Mutate(ctx, id, func(d *knowledge.Document) ([]knowledge.Transition, error) {
			trs, err := s.apply(d, req.Action, category)
			applied = trs
			return trs, err
		})
		if err != nil {
			results[i] = dombatch.NewError(id, fmt.Errorf("%s: %w", req.Action, err))
			continue
		}
		for _, tr := range applied {
			metrics.PipelineTransitionsTotal.WithLabelValues(string(tr.From), string(tr.To), string(tr.Action)).Inc()
		}
		results[i] = dombatch.NewOK(id)
	}

	ok, failed := dombatch.Count(results)
	s.logger.Info("Bulk action applied",
		zap.String("action", string(req.Action)),
		zap.Int("succeeded", ok),
		zap.Int("failed", failed),
	)
	return results, nil
}

func (s *Service) apply(d *knowledge.Document, action Action, category knowledge.Category) ([]knowledge.Transition, error) {
	now := s.now()
	var (
		tr  knowledge.Transition
		err error
	)
	switch action {
	case ActionApprove:
		tr, err = d.Transition(stage.Approved, stage.ActionApprove, "", now)
	case ActionRevoke:
		tr, err = d.Transition(stage.Rejected, stage.ActionRevoke, "", now)
	case ActionReprocess:
		tr, err = d.Transition(stage.Extracted, stage.ActionReprocess, "", now)
	case ActionReclassify:
		return reclassify(d, category, now)
	}
	if err != nil {
		return nil, err
	}
	return []knowledge.Transition{tr}, nil
}

// reclassify sets the category in place before chunking, and restarts
// processing from extracted once the document left the automatic pipeline.
func reclassify(d *knowledge.Document, c knowledge.Category, now time.Time) ([]knowledge.Transition, error) {
	switch st := d.Stage(); {
	case st == stage.Discovered || st == stage.Extracted || st == stage.Classified:
		d.Reclassify(c)
		return nil, nil
	case st.IsTerminal() || st == stage.Quarantined:
		d.Reclassify(c)
		tr, err := d.Transition(stage.Extracted, stage.ActionReclassify, "", now)
		if err != nil {
			return nil, err
		}
		return []knowledge.Transition{tr}, nil
	default:
		return nil, fmt.Errorf("cannot reclassify a document in %s: %w", st, domain.ErrInvalidTransition)
	}
}
