// Package stats reports the pipeline funnel and its bottlenecks.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
	"github.com/kailas-cloud/lexdex/internal/metrics"
)

// DefaultStuckAfter is the dwell time after which a document counts as stuck.
const DefaultStuckAfter = 72 * time.Hour

// Repository aggregates documents per stage.
type Repository interface {
	StageStats(ctx context.Context, now, stuckBefore time.Time) ([]knowledge.StageStat, error)
}

// StageCount is one funnel row.
type StageCount struct {
	Stage         stage.Stage `json:"stage"`
	Count         int         `json:"count"`
	Percent       float64     `json:"percent"`
	AvgDwellHours float64     `json:"avgDwellHours"`
}

// Bottleneck is a non-terminal stage holding stuck documents.
type Bottleneck struct {
	Stage         stage.Stage `json:"stage"`
	Stuck         int         `json:"stuck"`
	AvgDwellHours float64     `json:"avgDwellHours"`
	OldestSince   time.Time   `json:"oldestSince"`
}

// Funnel is the pipeline stats report.
type Funnel struct {
	Total       int          `json:"total"`
	Stages      []StageCount `json:"stages"`
	Bottlenecks []Bottleneck `json:"bottlenecks"`
}

// Service builds funnel reports.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New creates a stats service.
func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Funnel reports every stage in funnel order. stuckAfter <= 0 uses DefaultStuckAfter.
func (s *Service) Funnel(ctx context.Context, stuckAfter time.Duration) (Funnel, error) {
	if stuckAfter < 0 {
		return Funnel{}, fmt.Errorf("stuck_after must be positive: %w", domain.ErrValidation)
	}
	if stuckAfter == 0 {
		stuckAfter = DefaultStuckAfter
	}
	now := s.now()
	rows, err := s.repo.StageStats(ctx, now, now.Add(-stuckAfter))
	if err != nil {
		return Funnel{}, fmt.Errorf("stage stats: %w", err)
	}

	byStage := make(map[stage.Stage]knowledge.StageStat, len(rows))
	f := Funnel{Stages: make([]StageCount, 0, len(stage.Ordered)), Bottlenecks: []Bottleneck{}}
	for _, r := range rows {
		byStage[r.Stage] = r
		f.Total += r.Documents
	}

	for _, st := range stage.Ordered {
		r := byStage[st]
		metrics.PipelineStageDocuments.WithLabelValues(string(st)).Set(float64(r.Documents))

		row := StageCount{Stage: st, Count: r.Documents, AvgDwellHours: hours(r.AvgDwell)}
		if f.Total > 0 {
			row.Percent = math.Round(float64(r.Documents)/float64(f.Total)*1000) / 10
		}
		f.Stages = append(f.Stages, row)

		if st.IsTerminal() || r.Stuck == 0 || r.OldestStuck == nil {
			continue
		}
		f.Bottlenecks = append(f.Bottlenecks, Bottleneck{
			Stage:         st,
			Stuck:         r.Stuck,
			AvgDwellHours: hours(r.StuckAvgDwell),
			OldestSince:   *r.OldestStuck,
		})
	}
	return f, nil
}

func hours(d time.Duration) float64 {
	return math.Round(d.Hours()*10) / 10
}
