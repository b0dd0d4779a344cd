package chi

import (
	"context"
	"time"

	dombatch "github.com/kailas-cloud/lexdex/internal/domain/batch"
	"github.com/kailas-cloud/lexdex/internal/domain/citation"
	"github.com/kailas-cloud/lexdex/internal/domain/drift"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/search/request"
	batchuc "github.com/kailas-cloud/lexdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/lexdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/lexdex/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/lexdex/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/lexdex/internal/usecase/search"
	statsuc "github.com/kailas-cloud/lexdex/internal/usecase/stats"
)

// DocumentService ingests and looks up documents.
type DocumentService interface {
	Create(ctx context.Context, req documentuc.CreateRequest) (*knowledge.Document, error)
	Get(ctx context.Context, id string) (documentuc.View, error)
}

// PipelineRunner runs one pipeline batch.
type PipelineRunner interface {
	Run(ctx context.Context, t pipelineuc.Trigger) (pipelineuc.RunResult, error)
}

// StatsReporter reports the pipeline funnel.
type StatsReporter interface {
	Funnel(ctx context.Context, stuckAfter time.Duration) (statsuc.Funnel, error)
}

// BulkApplier applies operator actions to many documents.
type BulkApplier interface {
	Apply(ctx context.Context, req batchuc.Request) ([]dombatch.Result, error)
}

// Searcher answers retrieval requests.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (searchuc.Response, error)
}

// CitationValidator checks an answer's references against its sources.
type CitationValidator interface {
	Validate(ctx context.Context, answer string, sources []citation.Source) (citation.Report, error)
}

// DriftMonitor reports quality drift and takes user feedback.
type DriftMonitor interface {
	Report(ctx context.Context, window time.Duration) (drift.Report, error)
	RecordFeedback(ctx context.Context, rating int, comment string) error
}

// HealthChecker aggregates dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Services bundles everything the API serves. Nil members disable their routes.
type Services struct {
	Documents DocumentService
	Pipeline  PipelineRunner
	Stats     StatsReporter
	Bulk      BulkApplier
	Search    Searcher
	Citations CitationValidator
	Drift     DriftMonitor
	Health    HealthChecker
}
