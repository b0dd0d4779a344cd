// Package benchmark measures retrieval quality against gold questions.
package benchmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/eval"
	"github.com/kailas-cloud/lexdex/internal/domain/search/request"
	"github.com/kailas-cloud/lexdex/internal/domain/search/result"
)

// DefaultK is the default Recall@K cutoff.
const DefaultK = 10

type caseFile struct {
	Cases []eval.Case `yaml:"cases"`
}

// LoadCases reads gold cases from a YAML file with a top-level "cases" list.
func LoadCases(path string) ([]eval.Case, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read cases %s: %w", path, err)
	}
	var f caseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cases %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(f.Cases))
	for i, c := range f.Cases {
		if c.ID == "" || c.Question == "" || len(c.ExpectedDocumentIDs) == 0 {
			return nil, fmt.Errorf("case %d: id, question and expected_document_ids are required: %w", i, domain.ErrValidation)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate case id %q: %w", c.ID, domain.ErrValidation)
		}
		seen[c.ID] = struct{}{}
	}
	return f.Cases, nil
}

// Report is a benchmark outcome.
type Report struct {
	eval.BenchmarkResult
	// Errors counts cases whose retrieval failed; they score as misses.
	Errors   int
	Duration time.Duration
}

// Service runs benchmarks.
type Service struct {
	retriever Retriever
	logger    *zap.Logger
}

// New creates a benchmark runner.
func New(retriever Retriever, logger *zap.Logger) *Service {
	return &Service{retriever: retriever, logger: logger}
}

// Run retrieves the top k documents for each case and scores them.
func (s *Service) Run(ctx context.Context, cases []eval.Case, k int) (Report, error) {
	if len(cases) == 0 {
		return Report{}, fmt.Errorf("no cases: %w", domain.ErrValidation)
	}
	if k <= 0 {
		k = DefaultK
	}

	start := time.Now()
	var rep Report
	retrieved := make([][]string, len(cases))
	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		req, err := request.Parse(c.Question, c.Category, "", k)
		if err != nil {
			return Report{}, fmt.Errorf("case %s: %w", c.ID, err)
		}
		resp, err := s.retriever.Search(ctx, &req)
		if err != nil {
			rep.Errors++
			s.logger.Warn("Benchmark case failed", zap.String("case", c.ID), zap.Error(err))
			continue
		}
		retrieved[i] = result.DocumentIDs(resp.Hits)
	}

	rep.BenchmarkResult = eval.Score(cases, retrieved, k)
	rep.Duration = time.Since(start)
	s.logger.Info("Benchmark finished",
		zap.Int("cases", rep.Cases),
		zap.Int("k", k),
		zap.Float64("recall_at_k", rep.RecallAtK),
		zap.Float64("mrr", rep.MRR),
		zap.Int("errors", rep.Errors),
		zap.Duration("took", rep.Duration),
	)
	return rep, nil
}
