package knowledge

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
)

// MaxTitleLength bounds document titles.
const MaxTitleLength = 512

// Failure is the last processing failure recorded on a document.
type Failure struct {
	Code    domain.ReasonCode `json:"code"`
	Message string            `json:"message"`
}

// Transition is one timestamped stage change.
type Transition struct {
	DocumentID  string
	From        stage.Stage
	To          stage.Stage
	Action      stage.Action
	Reason      domain.ReasonCode
	ContentHash string
	At          time.Time
}

// Document is the knowledge document aggregate moved through the pipeline.
type Document struct {
	id             string
	title          string
	category       Category
	subcategory    string
	categoryLocked bool
	language       Language
	source         Source
	rawText        string
	normalizedText string
	contentHash    string
	stage          stage.Stage
	stageUpdatedAt time.Time
	qualityScore   *float64
	approved       bool
	active         bool
	needsReview    bool
	version        int
	retryCount     int
	lastFailure    *Failure
	stageHashes    map[stage.Stage]string
	createdAt      time.Time
}

// New validates and creates a document. Documents with inline text start at
// extracted; documents pointing at a stored object start at discovered.
// A non-empty category is treated as declared and survives classification.
func New(id, title, text, category string, src Source, now time.Time) (*Document, error) {
	title = strings.TrimSpace(title)
	if id == "" {
		return nil, fmt.Errorf("document id is required: %w", domain.ErrValidation)
	}
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if len(title) > MaxTitleLength {
		return nil, fmt.Errorf("title too long (max %d): %w", MaxTitleLength, domain.ErrValidation)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	d := &Document{
		id:             id,
		title:          title,
		category:       Autre,
		source:         src,
		stageUpdatedAt: now,
		createdAt:      now,
		active:         true,
		version:        1,
		stageHashes:    map[stage.Stage]string{},
	}
	if category != "" {
		c, ok := ParseCategory(category)
		if !ok {
			return nil, fmt.Errorf("unknown category %q: %w", category, domain.ErrValidation)
		}
		d.category = c
		d.categoryLocked = true
	}

	switch {
	case strings.TrimSpace(text) != "":
		d.rawText = text
		d.stage = stage.Extracted
	case src.ObjectKey != "":
		d.stage = stage.Discovered
	default:
		return nil, fmt.Errorf("either text or source.object_key is required: %w", domain.ErrValidation)
	}
	return d, nil
}

// Snapshot is the full persisted state of a document, used for hydration.
type Snapshot struct {
	ID             string
	Title          string
	Category       Category
	Subcategory    string
	CategoryLocked bool
	Language       Language
	Source         Source
	RawText        string
	NormalizedText string
	ContentHash    string
	Stage          stage.Stage
	StageUpdatedAt time.Time
	QualityScore   *float64
	Approved       bool
	Active         bool
	NeedsReview    bool
	Version        int
	RetryCount     int
	LastFailure    *Failure
	StageHashes    map[stage.Stage]string
	CreatedAt      time.Time
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(s Snapshot) *Document {
	hashes := s.StageHashes
	if hashes == nil {
		hashes = map[stage.Stage]string{}
	}
	return &Document{
		id: s.ID, title: s.Title, category: s.Category, subcategory: s.Subcategory,
		categoryLocked: s.CategoryLocked, language: s.Language, source: s.Source,
		rawText: s.RawText, normalizedText: s.NormalizedText, contentHash: s.ContentHash,
		stage: s.Stage, stageUpdatedAt: s.StageUpdatedAt, qualityScore: s.QualityScore,
		approved: s.Approved, active: s.Active, needsReview: s.NeedsReview, version: s.Version,
		retryCount: s.RetryCount, lastFailure: s.LastFailure, stageHashes: hashes, createdAt: s.CreatedAt,
	}
}

// Snapshot exports the document state for persistence.
func (d *Document) Snapshot() Snapshot {
	hashes := make(map[stage.Stage]string, len(d.stageHashes))
	for k, v := range d.stageHashes {
		hashes[k] = v
	}
	return Snapshot{
		ID: d.id, Title: d.title, Category: d.category, Subcategory: d.subcategory,
		CategoryLocked: d.categoryLocked, Language: d.language, Source: d.source,
		RawText: d.rawText, NormalizedText: d.normalizedText, ContentHash: d.contentHash,
		Stage: d.stage, StageUpdatedAt: d.stageUpdatedAt, QualityScore: d.qualityScore,
		Approved: d.approved, Active: d.active, NeedsReview: d.needsReview, Version: d.version,
		RetryCount: d.retryCount, LastFailure: d.lastFailure, StageHashes: hashes, CreatedAt: d.createdAt,
	}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Title returns the document title.
func (d *Document) Title() string { return d.title }

// Category returns the taxonomy category.
func (d *Document) Category() Category { return d.category }

// Subcategory returns the free-form subcategory.
func (d *Document) Subcategory() string { return d.subcategory }

// CategoryLocked reports whether the category was declared by an operator.
func (d *Document) CategoryLocked() bool { return d.categoryLocked }

// Language returns the detected language.
func (d *Document) Language() Language { return d.language }

// Source returns the source reference.
func (d *Document) Source() Source { return d.source }

// RawText returns the extracted text.
func (d *Document) RawText() string { return d.rawText }

// NormalizedText returns the normalized text.
func (d *Document) NormalizedText() string { return d.normalizedText }

// ContentHash returns the hash of the normalized text.
func (d *Document) ContentHash() string { return d.contentHash }

// Stage returns the pipeline stage.
func (d *Document) Stage() stage.Stage { return d.stage }

// StageUpdatedAt returns when the stage last changed.
func (d *Document) StageUpdatedAt() time.Time { return d.stageUpdatedAt }

// QualityScore returns the quality score, nil until scored.
func (d *Document) QualityScore() *float64 { return d.qualityScore }

// Approved reports whether the document is approved for retrieval.
func (d *Document) Approved() bool { return d.approved }

// Active reports whether the document is active.
func (d *Document) Active() bool { return d.active }

// NeedsReview reports whether a human must confirm the document before approval.
func (d *Document) NeedsReview() bool { return d.needsReview }

// Version returns the processing version counter.
func (d *Document) Version() int { return d.version }

// RetryCount returns consecutive retryable failures at the current stage.
func (d *Document) RetryCount() int { return d.retryCount }

// LastFailure returns the last recorded failure, if any.
func (d *Document) LastFailure() *Failure { return d.lastFailure }

// CreatedAt returns the ingestion time.
func (d *Document) CreatedAt() time.Time { return d.createdAt }

// StageHash returns the input hash recorded when st last completed.
func (d *Document) StageHash(st stage.Stage) string { return d.stageHashes[st] }

// SetStageHash records the input hash st completed with.
func (d *Document) SetStageHash(st stage.Stage, hash string) { d.stageHashes[st] = hash }

// SetRawText stores freshly extracted text.
func (d *Document) SetRawText(text string, anchors []Anchor) {
	d.rawText = text
	if len(anchors) > 0 {
		d.source.Anchors = anchors
	}
}

// SetNormalized stores normalization output.
func (d *Document) SetNormalized(text string, lang Language, hash string) {
	d.normalizedText = text
	d.language = lang
	d.contentHash = hash
}

// Classify applies a classifier decision. Declared categories are kept.
func (d *Document) Classify(c Category, subcategory string, needsReview bool) {
	if !d.categoryLocked {
		d.category = c
	}
	if subcategory != "" {
		d.subcategory = subcategory
	}
	d.needsReview = needsReview
}

// SetQualityScore records the quality score.
func (d *Document) SetQualityScore(score float64) {
	d.qualityScore = &score
}

// RecordFailure stores a failure and counts it against the retry budget.
func (d *Document) RecordFailure(code domain.ReasonCode, message string) int {
	d.lastFailure = &Failure{Code: code, Message: message}
	d.retryCount++
	return d.retryCount
}

// Transition moves the document to another stage and returns the history record.
func (d *Document) Transition(to stage.Stage, action stage.Action, reason domain.ReasonCode, now time.Time) (
	Transition, error,
) {
	from := d.stage
	if err := stage.CheckTransition(from, to, action); err != nil {
		return Transition{}, err
	}

	d.stage = to
	d.stageUpdatedAt = now
	switch action {
	case stage.ActionAdvance:
		d.retryCount = 0
		d.lastFailure = nil
		if to == stage.Approved {
			d.approved = true
		}
	case stage.ActionApprove:
		d.approved = true
		d.needsReview = false
	case stage.ActionRevoke:
		d.approved = false
	case stage.ActionReprocess, stage.ActionReclassify:
		d.approved = false
		d.retryCount = 0
		d.lastFailure = nil
		d.qualityScore = nil
		d.version++
	case stage.ActionQuarantine:
		d.approved = false
	}

	return Transition{
		DocumentID:  d.id,
		From:        from,
		To:          to,
		Action:      action,
		Reason:      reason,
		ContentHash: d.contentHash,
		At:          now,
	}, nil
}

// Reclassify sets an operator-declared category.
func (d *Document) Reclassify(c Category) {
	d.category = c
	d.categoryLocked = true
}

// Deactivate hides the document from retrieval without deleting it.
func (d *Document) Deactivate() { d.active = false }

// DeclareLanguage records the language given at ingestion. Normalization
// keeps it only when detection finds mixed text.
func (d *Document) DeclareLanguage(l Language) { d.language = l }
