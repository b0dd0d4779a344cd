// Package drift watches retrieval and answer quality over time.
package drift

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/drift"
	"github.com/kailas-cloud/lexdex/internal/metrics"
)

// Config holds drift thresholds. Rates and points are fractions (0.05 = 5 points).
type Config struct {
	Window             time.Duration
	MinSamples         int
	SimilarityWarnDrop float64
	SimilarityCritDrop float64
	RateWarnRise       float64
	RateCritRise       float64
	SentimentWarnDrop  float64
	SentimentCritDrop  float64
	ZCritical          float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Window:             7 * 24 * time.Hour,
		MinSamples:         30,
		SimilarityWarnDrop: 0.10,
		SimilarityCritDrop: 0.20,
		RateWarnRise:       0.05,
		RateCritRise:       0.10,
		SentimentWarnDrop:  0.10,
		SentimentCritDrop:  0.20,
		ZCritical:          1.96,
	}
}

// Service computes drift reports and records feedback.
type Service struct {
	store  EventStore
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a drift monitor.
func New(store EventStore, cfg Config, logger *zap.Logger) *Service {
	return &Service{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Report compares [now-window, now) with [now-2·window, now-window).
// A zero window uses the configured one.
func (s *Service) Report(ctx context.Context, window time.Duration) (drift.Report, error) {
	if window < 0 {
		return drift.Report{}, fmt.Errorf("negative window %s: %w", window, domain.ErrValidation)
	}
	if window == 0 {
		window = s.cfg.Window
	}

	now := s.now().UTC()
	cur, err := s.store.WindowStats(ctx, drift.Window{From: now.Add(-window), To: now})
	if err != nil {
		return drift.Report{}, fmt.Errorf("current window: %w", err)
	}
	base, err := s.store.WindowStats(ctx, drift.Window{From: now.Add(-2 * window), To: now.Add(-window)})
	if err != nil {
		return drift.Report{}, fmt.Errorf("baseline window: %w", err)
	}

	alerts := detect(base, cur, s.cfg)
	if alerts == nil {
		alerts = []drift.Alert{}
	}
	rep := drift.Report{
		Status:      verdict(alerts),
		Current:     cur,
		Baseline:    base,
		Alerts:      alerts,
		GeneratedAt: now,
	}
	return rep, nil
}

// Check builds a report for the configured window and publishes it to
// logs and metrics. It is the scheduled job.
func (s *Service) Check(ctx context.Context) error {
	rep, err := s.Report(ctx, 0)
	if err != nil {
		return err
	}

	switch rep.Status {
	case drift.StatusDegraded:
		metrics.DriftStatus.Set(2)
	case drift.StatusWarning:
		metrics.DriftStatus.Set(1)
	default:
		metrics.DriftStatus.Set(0)
	}
	for _, a := range rep.Alerts {
		metrics.DriftAlertsTotal.WithLabelValues(string(a.Metric), string(a.Severity)).Inc()
		s.logger.Warn("Quality drift detected",
			zap.String("metric", string(a.Metric)),
			zap.String("severity", string(a.Severity)),
			zap.Float64("baseline", a.Baseline),
			zap.Float64("current", a.Current),
			zap.String("message", a.Message),
		)
	}
	s.logger.Info("Drift check finished",
		zap.String("status", string(rep.Status)),
		zap.Int("queries", rep.Current.Queries),
		zap.Int("answers", rep.Current.Answers),
		zap.Int("feedback", rep.Current.Feedback),
	)
	return nil
}

// RecordFeedback stores a 1..5 rating.
func (s *Service) RecordFeedback(ctx context.Context, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d outside 1..5: %w", rating, domain.ErrValidation)
	}
	if err := s.store.RecordFeedback(ctx, drift.Feedback{Rating: rating, Comment: comment, At: s.now().UTC()}); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}
