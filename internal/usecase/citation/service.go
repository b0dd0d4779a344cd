// Package citation verifies the legal references of a generated answer
// against the sources it was generated from.
package citation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/citation"
	"github.com/kailas-cloud/lexdex/internal/domain/drift"
	"github.com/kailas-cloud/lexdex/internal/metrics"
)

// MaxSources bounds the sources one validation may carry.
const MaxSources = 50

// Service validates citations. It reports, it never rejects an answer.
type Service struct {
	events AnswerRecorder
	logger *zap.Logger
	now    func() time.Time
}

// New creates a citation validator. events can be nil.
func New(events AnswerRecorder, logger *zap.Logger) *Service {
	return &Service{events: events, logger: logger, now: time.Now}
}

// Validate extracts the references of answer and matches them against
// sources. Sources without an index are numbered from 1 in order.
func (s *Service) Validate(ctx context.Context, answer string, sources []citation.Source) (citation.Report, error) {
	if len(sources) > MaxSources {
		return citation.Report{}, fmt.Errorf("too many sources (max %d): %w", MaxSources, domain.ErrValidation)
	}
	sources = append([]citation.Source(nil), sources...)
	for i := range sources {
		if sources[i].Index == 0 {
			sources[i].Index = i + 1
		}
	}
	prep := prepare(sources)

	rep := citation.Report{Validations: []citation.Validation{}, Warnings: []citation.Warning{}}
	for _, ref := range Extract(answer) {
		v := match(ref, prep)
		rep.Validations = append(rep.Validations, v)
		switch v.Status {
		case citation.Verified:
			rep.Verified++
		case citation.PartialMatch:
			rep.Partial++
			rep.Warnings = append(rep.Warnings, warning(v, "reference only partially matches a source"))
		default:
			rep.Unverified++
			rep.Warnings = append(rep.Warnings, warning(v, "reference not found in the sources"))
		}
		metrics.CitationsTotal.WithLabelValues(string(v.Status)).Inc()
	}
	rep.Total = len(rep.Validations)

	rep.Claims = verifyClaims(answer, prep)
	for _, c := range rep.Claims {
		if !c.Supported {
			rep.UnsupportedClaims++
		}
	}

	if rep.Flagged() {
		s.logger.Warn("Answer carries unverified citations",
			zap.Int("total", rep.Total),
			zap.Int("unverified", rep.Unverified),
			zap.Int("unsupported_claims", rep.UnsupportedClaims),
		)
	}
	s.record(ctx, &rep)
	return rep, nil
}

func (s *Service) record(ctx context.Context, rep *citation.Report) {
	if s.events == nil {
		return
	}
	c := drift.AnswerCheck{
		References: rep.Total,
		Unverified: rep.Unverified,
		Flagged:    rep.Flagged(),
		At:         s.now().UTC(),
	}
	if err := s.events.RecordAnswerCheck(ctx, c); err != nil {
		s.logger.Warn("Failed to record answer check", zap.Error(err))
	}
}

func warning(v citation.Validation, msg string) citation.Warning {
	return citation.Warning{Code: string(domain.ReasonCitationUnverified), Message: msg, Raw: v.Reference.Raw}
}
