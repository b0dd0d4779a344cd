package chi

import (
	"time"

	"github.com/kailas-cloud/lexdex/internal/domain"
	dombatch "github.com/kailas-cloud/lexdex/internal/domain/batch"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/citation"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
	"github.com/kailas-cloud/lexdex/internal/domain/search/result"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
	documentuc "github.com/kailas-cloud/lexdex/internal/usecase/document"
	searchuc "github.com/kailas-cloud/lexdex/internal/usecase/search"
)

// ErrorCode is the machine-readable code of an API error.
type ErrorCode string

// Transport-level error codes. Domain failures use their reason code.
const (
	CodeBadRequest   ErrorCode = "bad_request"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeValidation   ErrorCode = ErrorCode(domain.ReasonValidation)
	CodeNotFound     ErrorCode = ErrorCode(domain.ReasonNotFound)
	CodeInternal     ErrorCode = ErrorCode(domain.ReasonInternal)
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// CreateDocumentRequest is the body of POST /api/v1/documents.
type CreateDocumentRequest struct {
	Title    string           `json:"title"`
	Text     string           `json:"text,omitempty"`
	Category string           `json:"category,omitempty"`
	Language string           `json:"language,omitempty"`
	Source   knowledge.Source `json:"source"`
}

// Document is the API view of a knowledge document.
type Document struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Category       knowledge.Category `json:"category,omitempty"`
	Subcategory    string             `json:"subcategory,omitempty"`
	Language       knowledge.Language `json:"language,omitempty"`
	Stage          stage.Stage        `json:"stage"`
	Approved       bool               `json:"approved"`
	Active         bool               `json:"active"`
	NeedsReview    bool               `json:"needsReview"`
	QualityScore   *float64           `json:"qualityScore,omitempty"`
	RetryCount     int                `json:"retryCount"`
	LastFailure    *knowledge.Failure `json:"lastFailure,omitempty"`
	Version        int                `json:"version"`
	Source         knowledge.Source   `json:"source"`
	CreatedAt      time.Time          `json:"createdAt"`
	StageUpdatedAt time.Time          `json:"stageUpdatedAt"`
}

// Chunk is the API view of a stored chunk.
type Chunk struct {
	ID             string          `json:"id"`
	Ordinal        int             `json:"ordinal"`
	Content        string          `json:"content"`
	TokenCount     int             `json:"tokenCount"`
	Strategy       chunk.Strategy  `json:"strategy"`
	ArticleNumbers []string        `json:"articleNumbers,omitempty"`
	HeadingPath    []string        `json:"headingPath,omitempty"`
	Locator        locator.Locator `json:"locator"`
}

// Transition is one entry of a document's stage history.
type Transition struct {
	From   stage.Stage       `json:"from"`
	To     stage.Stage       `json:"to"`
	Action stage.Action      `json:"action"`
	Reason domain.ReasonCode `json:"reason,omitempty"`
	At     time.Time         `json:"at"`
}

// DocumentView is the body of GET /api/v1/documents/{id}.
type DocumentView struct {
	Document
	Chunks      []Chunk      `json:"chunks"`
	Transitions []Transition `json:"transitions"`
}

// RunPipelineRequest is the optional body of POST /api/v1/pipeline/run.
type RunPipelineRequest struct {
	BatchSize int    `json:"batchSize,omitempty"`
	Category  string `json:"category,omitempty"`
	MaxItems  int    `json:"maxItems,omitempty"`
}

// RunPipelineResponse reports a finished pipeline run.
type RunPipelineResponse struct {
	Processed  int     `json:"processed"`
	Failed     int     `json:"failed"`
	DurationMs float64 `json:"durationMs"`
}

// BulkRequest is the body of POST /api/v1/pipeline/bulk.
type BulkRequest struct {
	Action   string   `json:"action"`
	IDs      []string `json:"ids"`
	Category string   `json:"category,omitempty"`
}

// BulkItem is the outcome of one id of a bulk request.
type BulkItem struct {
	ID     string              `json:"id"`
	Status dombatch.ItemStatus `json:"status"`
	Error  *BulkError          `json:"error,omitempty"`
}

// BulkError explains a failed bulk item.
type BulkError struct {
	Code    domain.ReasonCode `json:"code"`
	Message string            `json:"message"`
}

// BulkResponse reports every id of a bulk request.
type BulkResponse struct {
	Items     []BulkItem `json:"items"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query      string        `json:"query"`
	Filters    SearchFilters `json:"filters"`
	MaxResults int           `json:"maxResults,omitempty"`
}

// SearchFilters restrict retrieval to one category or language.
type SearchFilters struct {
	Category string `json:"category,omitempty"`
	Language string `json:"language,omitempty"`
}

// SearchHit is one ranked chunk.
type SearchHit struct {
	ChunkID        string          `json:"chunkId"`
	DocumentID     string          `json:"documentId"`
	Title          string          `json:"title"`
	Content        string          `json:"content"`
	ArticleNumbers []string        `json:"articleNumbers,omitempty"`
	Locator        locator.Locator `json:"locator"`
	Similarity     float64         `json:"similarityScore"`
	Lexical        float64         `json:"lexicalScore"`
	Score          float64         `json:"finalScore"`
	Pinned         bool            `json:"pinned,omitempty"`
}

// SearchResponse is the body of a search answer. Abstained is set when
// nothing survived gating.
type SearchResponse struct {
	Items      []SearchHit `json:"items"`
	Provider   string      `json:"provider"`
	Domains    []string    `json:"domains,omitempty"`
	Confidence float64     `json:"confidence"`
	Abstained  bool        `json:"abstained"`
}

// ValidateAnswerRequest is the body of POST /api/v1/answers/validate.
type ValidateAnswerRequest struct {
	Answer  string         `json:"answer"`
	Sources []AnswerSource `json:"sources"`
}

// AnswerSource is a retrieved passage the answer was generated from.
type AnswerSource struct {
	Index      int    `json:"index,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
}

// FeedbackRequest is the body of POST /api/v1/feedback.
type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func documentToAPI(d *knowledge.Document) Document {
	return Document{
		ID:             d.ID(),
		Title:          d.Title(),
		Category:       d.Category(),
		Subcategory:    d.Subcategory(),
		Language:       d.Language(),
		Stage:          d.Stage(),
		Approved:       d.Approved(),
		Active:         d.Active(),
		NeedsReview:    d.NeedsReview(),
		QualityScore:   d.QualityScore(),
		RetryCount:     d.RetryCount(),
		LastFailure:    d.LastFailure(),
		Version:        d.Version(),
		Source:         d.Source(),
		CreatedAt:      d.CreatedAt(),
		StageUpdatedAt: d.StageUpdatedAt(),
	}
}

func viewToAPI(v documentuc.View) DocumentView {
	out := DocumentView{
		Document:    documentToAPI(v.Document),
		Chunks:      make([]Chunk, len(v.Chunks)),
		Transitions: make([]Transition, len(v.Transitions)),
	}
	for i := range v.Chunks {
		c := &v.Chunks[i]
		out.Chunks[i] = Chunk{
			ID:             c.ID,
			Ordinal:        c.Ordinal,
			Content:        c.Content,
			TokenCount:     c.TokenCount,
			Strategy:       c.Strategy,
			ArticleNumbers: c.ArticleNumbers,
			HeadingPath:    c.HeadingPath,
			Locator:        c.Locator,
		}
	}
	for i, t := range v.Transitions {
		out.Transitions[i] = Transition{From: t.From, To: t.To, Action: t.Action, Reason: t.Reason, At: t.At}
	}
	return out
}

func searchToAPI(resp searchuc.Response) SearchResponse {
	items := make([]SearchHit, len(resp.Hits))
	for i := range resp.Hits {
		items[i] = hitToAPI(&resp.Hits[i])
	}
	return SearchResponse{
		Items:      items,
		Provider:   resp.Provider,
		Domains:    resp.Intent.Domains,
		Confidence: resp.Intent.Confidence,
		Abstained:  len(items) == 0,
	}
}

func hitToAPI(h *result.Hit) SearchHit {
	return SearchHit{
		ChunkID:        h.ChunkID,
		DocumentID:     h.DocumentID,
		Title:          h.Title,
		Content:        h.Content,
		ArticleNumbers: h.ArticleNumbers,
		Locator:        h.Locator,
		Similarity:     h.Similarity,
		Lexical:        h.Lexical,
		Score:          h.Final,
		Pinned:         h.Pinned,
	}
}

func sourcesFromAPI(in []AnswerSource) []citation.Source {
	out := make([]citation.Source, len(in))
	for i, s := range in {
		out[i] = citation.Source{Index: s.Index, DocumentID: s.DocumentID, Title: s.Title, Content: s.Content}
	}
	return out
}

func bulkToAPI(results []dombatch.Result) BulkResponse {
	items := make([]BulkItem, len(results))
	for i, r := range results {
		items[i] = BulkItem{ID: r.ID(), Status: r.Status()}
		if r.Err() != nil {
			items[i].Error = &BulkError{Code: r.Reason(), Message: domain.MessageOf(r.Err())}
		}
	}
	succeeded, failed := dombatch.Count(results)
	return BulkResponse{Items: items, Succeeded: succeeded, Failed: failed}
}
