// Package document ingests knowledge documents and serves their processing view.
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

// CreateRequest is a new document as submitted by a crawler or uploader.
// Text is optional when Source.ObjectKey points at a stored file.
type CreateRequest struct {
	Title    string
	Text     string
	Category string
	Language string
	Source   knowledge.Source
}

// View is a document with its chunks and stage history.
type View struct {
	Document    *knowledge.Document
	Chunks      []chunk.Chunk
	Transitions []knowledge.Transition
}

// Service handles document ingestion and lookup.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a document service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now, newID: uuid.NewString}
}

// Create validates and stores a document. It starts at extracted when text
// is given and at discovered otherwise; batch runs take it from there.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*knowledge.Document, error) {
	d, err := knowledge.New(s.newID(), req.Title, req.Text, req.Category, req.Source, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if req.Language != "" {
		lang, ok := knowledge.ParseLanguage(req.Language)
		if !ok {
			return nil, fmt.Errorf("unknown language %q: %w", req.Language, domain.ErrValidation)
		}
		d.DeclareLanguage(lang)
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.logger.Info("Document ingested",
		zap.String("document_id", d.ID()),
		zap.String("stage", string(d.Stage())),
		zap.String("source_kind", string(req.Source.Kind)),
	)
	return d, nil
}

// Get returns the document view.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("get document: %w", err)
	}
	chunks, err := s.repo.Chunks(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("list chunks: %w", err)
	}
	trs, err := s.repo.Transitions(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("list transitions: %w", err)
	}
	return View{Document: d, Chunks: chunks, Transitions: trs}, nil
}
