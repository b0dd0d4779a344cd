package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
)

const documentsTable = "knowledge_documents"

var documentColumns = []string{
	"id", "title", "category", "subcategory", "category_locked", "language", "source",
	"raw_text", "normalized_text", "content_hash", "stage", "stage_updated_at", "quality_score",
	"is_approved", "is_active", "needs_review", "version", "retry_count", "last_failure",
	"stage_hashes", "created_at",
}

var chunkColumns = []string{
	"id", "document_id", "ordinal", "content", "token_count", "strategy",
	"article_numbers", "heading_path", "start_offset", "end_offset", "locator",
}

// documentValues returns the row values in documentColumns order.
func documentValues(d *knowledge.Document) ([]any, error) {
	s := d.Snapshot()
	src, err := json.Marshal(s.Source)
	if err != nil {
		return nil, fmt.Errorf("marshal source: %w", err)
	}
	var failure json.RawMessage
	if s.LastFailure != nil {
		if failure, err = json.Marshal(s.LastFailure); err != nil {
			return nil, fmt.Errorf("marshal last failure: %w", err)
		}
	}
	hashes, err := json.Marshal(s.StageHashes)
	if err != nil {
		return nil, fmt.Errorf("marshal stage hashes: %w", err)
	}
	return []any{
		s.ID, s.Title, string(s.Category), s.Subcategory, s.CategoryLocked, string(s.Language),
		json.RawMessage(src), s.RawText, s.NormalizedText, s.ContentHash, string(s.Stage),
		s.StageUpdatedAt, s.QualityScore, s.Approved, s.Active, s.NeedsReview, s.Version,
		s.RetryCount, failure, json.RawMessage(hashes), s.CreatedAt,
	}, nil
}

// scanDocument reads a row selected with documentColumns.
func scanDocument(row pgx.Row) (*knowledge.Document, error) {
	var (
		s                    knowledge.Snapshot
		category, lang, st   string
		src, failure, hashes []byte
	)
	if err := row.Scan(
		&s.ID, &s.Title, &category, &s.Subcategory, &s.CategoryLocked, &lang, &src,
		&s.RawText, &s.NormalizedText, &s.ContentHash, &st, &s.StageUpdatedAt, &s.QualityScore,
		&s.Approved, &s.Active, &s.NeedsReview, &s.Version, &s.RetryCount, &failure,
		&hashes, &s.CreatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // mapped by the caller
	}
	s.Category = knowledge.Category(category)
	s.Language = knowledge.Language(lang)
	s.Stage = stage.Stage(st)
	if err := json.Unmarshal(src, &s.Source); err != nil {
		return nil, fmt.Errorf("decode source of %s: %w", s.ID, err)
	}
	if len(failure) > 0 {
		s.LastFailure = &knowledge.Failure{}
		if err := json.Unmarshal(failure, s.LastFailure); err != nil {
			return nil, fmt.Errorf("decode last failure of %s: %w", s.ID, err)
		}
	}
	if len(hashes) > 0 {
		if err := json.Unmarshal(hashes, &s.StageHashes); err != nil {
			return nil, fmt.Errorf("decode stage hashes of %s: %w", s.ID, err)
		}
	}
	s.StageUpdatedAt = s.StageUpdatedAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return knowledge.Reconstruct(s), nil
}

// chunkValues returns the row values in chunkColumns order.
func chunkValues(c *chunk.Chunk) ([]any, error) {
	var loc json.RawMessage
	if !c.Locator.IsZero() {
		raw, err := json.Marshal(c.Locator)
		if err != nil {
			return nil, fmt.Errorf("marshal locator of chunk %d: %w", c.Ordinal, err)
		}
		loc = raw
	}
	return []any{
		c.ID, c.DocumentID, c.Ordinal, c.Content, c.TokenCount, string(c.Strategy),
		nonNil(c.ArticleNumbers), nonNil(c.HeadingPath), c.Start, c.End, loc,
	}, nil
}

func scanChunk(row pgx.Row) (chunk.Chunk, error) {
	var (
		c        chunk.Chunk
		strategy string
		loc      []byte
	)
	if err := row.Scan(
		&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &c.TokenCount, &strategy,
		&c.ArticleNumbers, &c.HeadingPath, &c.Start, &c.End, &loc,
	); err != nil {
		return chunk.Chunk{}, err //nolint:wrapcheck // mapped by the caller
	}
	c.Strategy = chunk.Strategy(strategy)
	if len(loc) > 0 {
		var l locator.Locator
		if err := json.Unmarshal(loc, &l); err != nil {
			return chunk.Chunk{}, fmt.Errorf("decode locator of chunk %s: %w", c.ID, err)
		}
		c.Locator = l
	}
	if len(c.ArticleNumbers) == 0 {
		c.ArticleNumbers = nil
	}
	if len(c.HeadingPath) == 0 {
		c.HeadingPath = nil
	}
	return c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// statRow is one aggregated stage row.
type statRow struct {
	stage       string
	documents   int
	avgDwellSec float64
	stuck       int
	stuckAvgSec float64
	oldestStuck *time.Time
}

func (r statRow) toDomain() knowledge.StageStat {
	return knowledge.StageStat{
		Stage:         stage.Stage(r.stage),
		Documents:     r.documents,
		AvgDwell:      seconds(r.avgDwellSec),
		Stuck:         r.stuck,
		StuckAvgDwell: seconds(r.stuckAvgSec),
		OldestStuck:   r.oldestStuck,
	}
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
