// Package pipeline runs knowledge documents through the processing stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
	"github.com/kailas-cloud/lexdex/internal/metrics"
	"github.com/kailas-cloud/lexdex/internal/usecase/chunking"
	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
)

// Deps are the collaborators of a batch run.
type Deps struct {
	Repo       Repository
	Extractor  Extractor
	Normalizer Normalizer
	Classifier Classifier
	Chunker    Chunker
	Embedder   Embedder
}

// Service drives batch runs.
type Service struct {
	Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a pipeline service.
func New(deps Deps, cfg Config, logger *zap.Logger) *Service {
	return &Service{Deps: deps, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Run claims pending documents page by page and advances each one until it
// reaches a terminal stage, waits for review or fails. A document is
// attempted at most once per run.
func (s *Service) Run(ctx context.Context, t Trigger) (RunResult, error) {
	t, err := t.validate()
	if err != nil {
		return RunResult{}, err
	}
	var category *knowledge.Category
	if t.Category != "" {
		c, ok := knowledge.ParseCategory(t.Category)
		if !ok {
			return RunResult{}, fmt.Errorf("unknown category %q: %w", t.Category, domain.ErrValidation)
		}
		category = &c
	}

	start := s.now()
	token := uuid.NewString()
	var (
		mu        sync.Mutex
		res       RunResult
		attempted []string
	)

	for len(attempted) < t.MaxItems && ctx.Err() == nil {
		now := s.now()
		docs, err := s.Repo.Claim(ctx, knowledge.ClaimFilter{
			Stages:           stage.Pending(),
			Category:         category,
			Limit:            min(t.BatchSize, t.MaxItems-len(attempted)),
			Exclude:          attempted,
			Token:            token,
			Until:            now.Add(s.cfg.LeaseDuration),
			Now:              now,
			ApproveThreshold: s.cfg.ApproveThreshold,
			RejectThreshold:  s.cfg.RejectThreshold,
		})
		if err != nil {
			return res, fmt.Errorf("claim documents: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for _, d := range docs {
			attempted = append(attempted, d.ID())
			g.Go(func() error {
				ok := s.process(ctx, d, token)
				mu.Lock()
				if ok {
					res.Processed++
				} else {
					res.Failed++
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	res.Duration = s.now().Sub(start)
	metrics.PipelineBatchDocuments.WithLabelValues("processed").Add(float64(res.Processed))
	metrics.PipelineBatchDocuments.WithLabelValues("failed").Add(float64(res.Failed))
	s.logger.Info("Batch run finished",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// process advances one claimed document. It reports false when the
// document hit a failure or the run lost its lease.
func (s *Service) process(ctx context.Context, d *knowledge.Document, token string) bool {
	log := s.logger.With(zap.String("document_id", d.ID()))
	defer func() {
		if err := s.Repo.Release(context.WithoutCancel(ctx), d.ID(), token); err != nil {
			log.Warn("Failed to release lease", zap.Error(err))
		}
	}()

	for {
		if ctx.Err() != nil {
			return false
		}
		from := d.Stage()
		if !from.IsPending() || (from == stage.QualityScored && !s.decidable(d)) {
			return true
		}

		started := time.Now()
		c, err := s.step(ctx, d)
		metrics.PipelineStageDuration.WithLabelValues(string(from)).Observe(time.Since(started).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			s.fail(ctx, log, d, token, from, err)
			return false
		}

		c.Document = d
		c.LeaseToken = token
		if err := s.Repo.Commit(ctx, c); err != nil {
			if errors.Is(err, db.ErrConflict) {
				log.Warn("Lease lost, leaving document to its new holder", zap.String("stage", string(from)))
			} else {
				log.Error("Failed to commit stage", zap.String("stage", string(from)), zap.Error(err))
			}
			return false
		}
		for _, tr := range c.Transitions {
			metrics.PipelineTransitionsTotal.WithLabelValues(string(tr.From), string(tr.To), string(tr.Action)).Inc()
		}
	}
}

// decidable reports whether a scored document can leave quality_scored
// without a reviewer.
func (s *Service) decidable(d *knowledge.Document) bool {
	score := d.QualityScore()
	if score == nil || d.NeedsReview() {
		return false
	}
	return *score >= s.cfg.ApproveThreshold || *score < s.cfg.RejectThreshold
}

func (s *Service) step(ctx context.Context, d *knowledge.Document) (knowledge.Commit, error) {
	switch d.Stage() {
	case stage.Discovered:
		return s.extract(ctx, d)
	case stage.Extracted:
		return s.classify(d)
	case stage.Classified:
		return s.chunk(d)
	case stage.Chunked:
		return s.embed(ctx, d)
	case stage.Embedded:
		return s.score(ctx, d)
	case stage.QualityScored:
		return s.decide(d)
	default:
		return knowledge.Commit{}, fmt.Errorf("stage %s has no work: %w", d.Stage(), domain.ErrInvalidTransition)
	}
}

func (s *Service) extract(ctx context.Context, d *knowledge.Document) (knowledge.Commit, error) {
	src := d.Source()
	hash := inputHash(string(src.Kind), src.ObjectKey, src.ContentType)
	if d.StageHash(stage.Extracted) != hash || d.RawText() == "" {
		ex, err := s.Extractor.Extract(ctx, src)
		if err != nil {
			return knowledge.Commit{}, err
		}
		if strings.TrimSpace(ex.Text) == "" {
			return knowledge.Commit{}, domain.NewReasonError(domain.ReasonExtractionFailed, "source produced no text")
		}
		d.SetRawText(ex.Text, ex.Anchors)
		d.SetStageHash(stage.Extracted, hash)
	}
	return s.advance(d, stage.Extracted, "")
}

func (s *Service) classify(d *knowledge.Document) (knowledge.Commit, error) {
	var declared *knowledge.Category
	declaredName := ""
	if d.CategoryLocked() {
		c := d.Category()
		declared = &c
		declaredName = string(c)
	}

	var reason domain.ReasonCode
	hash := inputHash(normalize.Hash(d.RawText()), declaredName)
	if d.StageHash(stage.Classified) != hash || d.ContentHash() == "" {
		n := s.Normalizer.Normalize(d.RawText())
		if strings.TrimSpace(n.Text) == "" {
			return knowledge.Commit{}, domain.NewReasonError(domain.ReasonContentTooShort, "normalized text is empty")
		}
		lang := n.Language
		if lang == knowledge.Mixed && d.Language() != "" && d.Language() != knowledge.Mixed {
			lang = d.Language()
		}
		d.SetNormalized(n.Text, lang, normalize.Hash(n.Text))

		r := s.Classifier.Classify(d.Title(), n.Text, lang, declared)
		d.Classify(r.Category, r.Subcategory, r.NeedsReview)
		if r.Ambiguous {
			reason = domain.ReasonClassificationAmbiguous
		}
		d.SetStageHash(stage.Classified, hash)
	}
	return s.advance(d, stage.Classified, reason)
}

func (s *Service) chunk(d *knowledge.Document) (knowledge.Commit, error) {
	cat := d.Category()
	hash := inputHash(d.ContentHash(), string(cat), s.Chunker.Fingerprint(cat))
	if d.StageHash(stage.Chunked) == hash {
		return s.advance(d, stage.Chunked, "")
	}

	drafts, err := s.Chunker.Chunk(d.NormalizedText(), cat)
	if err != nil {
		return knowledge.Commit{}, err
	}
	src := d.Source()
	anchors := make([]knowledge.Anchor, len(src.Anchors))
	for i, a := range src.Anchors {
		anchors[i] = knowledge.Anchor{ID: a.ID, Text: s.Normalizer.Normalize(a.Text).Text}
	}
	chunks := chunking.Bind(d.ID(), d.NormalizedText(), src, anchors, drafts)

	d.SetStageHash(stage.Chunked, hash)
	// новый набор чанков теряет старые векторы
	d.SetStageHash(stage.Embedded, "")
	c, err := s.advance(d, stage.Chunked, "")
	c.Chunks = &chunks
	return c, err
}

func (s *Service) embed(ctx context.Context, d *knowledge.Document) (knowledge.Commit, error) {
	chunks, err := s.Repo.Chunks(ctx, d.ID())
	if err != nil {
		return knowledge.Commit{}, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return knowledge.Commit{}, domain.NewReasonError(domain.ReasonContentTooShort, "document has no chunks")
	}

	parts := make([]string, 0, len(chunks)+2)
	texts := make([]string, len(chunks))
	for i := range chunks {
		parts = append(parts, chunks[i].ID)
		texts[i] = chunks[i].Content
	}
	hash := inputHash(append(parts, s.Embedder.Providers()...)...)
	if d.StageHash(stage.Embedded) == hash {
		return s.advance(d, stage.Embedded, "")
	}

	set, err := s.Embedder.EmbedSet(ctx, texts)
	if err != nil {
		return knowledge.Commit{}, err
	}
	if len(set.Vectors) != len(chunks) {
		return knowledge.Commit{}, fmt.Errorf("%s returned %d vectors for %d chunks: %w",
			set.Provider, len(set.Vectors), len(chunks), domain.ErrProviderCall)
	}

	vectors := make([]chunk.Vector, len(chunks))
	for i := range chunks {
		vectors[i] = chunk.Vector{
			ChunkID:    chunks[i].ID,
			Provider:   set.Provider,
			Dimensions: set.Dimensions,
			Values:     set.Vectors[i],
		}
	}
	d.SetStageHash(stage.Embedded, hash)
	c, err := s.advance(d, stage.Embedded, "")
	c.Vectors = vectors
	if mean := chunk.Mean(set.Vectors); mean != nil {
		c.Centroid = &chunk.Centroid{
			DocumentID: d.ID(),
			Provider:   set.Provider,
			Dimensions: set.Dimensions,
			Values:     mean,
		}
	}
	return c, err
}

func (s *Service) score(ctx context.Context, d *knowledge.Document) (knowledge.Commit, error) {
	chunks, err := s.Repo.Chunks(ctx, d.ID())
	if err != nil {
		return knowledge.Commit{}, fmt.Errorf("load chunks: %w", err)
	}
	q := Score(d, chunks, s.Chunker.Params(d.Category()))
	d.SetQualityScore(q.Overall)
	return s.advance(d, stage.QualityScored, "")
}

func (s *Service) decide(d *knowledge.Document) (knowledge.Commit, error) {
	to := stage.Approved
	if *d.QualityScore() < s.cfg.RejectThreshold {
		to = stage.Rejected
	}
	return s.advance(d, to, "")
}

func (s *Service) advance(d *knowledge.Document, to stage.Stage, reason domain.ReasonCode) (knowledge.Commit, error) {
	tr, err := d.Transition(to, stage.ActionAdvance, reason, s.now())
	if err != nil {
		return knowledge.Commit{}, err
	}
	return knowledge.Commit{Transitions: []knowledge.Transition{tr}}, nil
}

// fail records err on d. Structural failures and an exhausted retry budget
// quarantine the document; other failures keep its stage for the next run.
func (s *Service) fail(
	ctx context.Context, log *zap.Logger, d *knowledge.Document, token string, from stage.Stage, err error,
) {
	code := domain.ReasonOf(err)
	metrics.PipelineFailuresTotal.WithLabelValues(string(from), string(code)).Inc()

	retries := d.RecordFailure(code, err.Error())
	var quarantine domain.ReasonCode
	switch {
	case domain.IsStructural(err):
		quarantine = code
	case retries >= s.cfg.MaxRetries:
		quarantine = domain.ReasonRetriesExhausted
	}

	c := knowledge.Commit{Document: d, LeaseToken: token}
	if quarantine != "" {
		tr, terr := d.Transition(stage.Quarantined, stage.ActionQuarantine, quarantine, s.now())
		if terr != nil {
			log.Error("Failed to quarantine document", zap.Error(terr))
		} else {
			c.Transitions = append(c.Transitions, tr)
		}
	}
	if cerr := s.Repo.Commit(ctx, c); cerr != nil {
		log.Error("Failed to record stage failure", zap.Error(cerr))
		return
	}
	for _, tr := range c.Transitions {
		metrics.PipelineTransitionsTotal.WithLabelValues(string(tr.From), string(tr.To), string(tr.Action)).Inc()
	}
	log.Warn("Stage failed",
		zap.String("stage", string(from)),
		zap.String("reason", string(code)),
		zap.Int("retry_count", retries),
		zap.Bool("quarantined", quarantine != ""),
		zap.Error(err),
	)
}

// inputHash is the idempotence key of a stage run.
func inputHash(parts ...string) string {
	return normalize.Hash(strings.Join(parts, "\x00"))
}
