package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
)

// --- Happy path ---

func TestRun_InlineTextReachesApproved(t *testing.T) {
	h := newHarness(t)
	h.addText(t, "doc-1")

	res := h.run(t, Trigger{BatchSize: 10})
	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 1 processed", res)
	}

	d := h.repo.doc(t, "doc-1")
	if d.Stage() != stage.Approved || !d.Approved() {
		t.Fatalf("stage = %s approved=%v, want approved", d.Stage(), d.Approved())
	}
	if d.Language() != knowledge.French || d.ContentHash() == "" {
		t.Errorf("normalization not stored: lang=%q hash=%q", d.Language(), d.ContentHash())
	}
	if d.Category() != knowledge.Codes {
		t.Errorf("category = %s, want codes", d.Category())
	}

	want := []stage.Stage{stage.Classified, stage.Chunked, stage.Embedded, stage.QualityScored, stage.Approved}
	trs := h.repo.transitionsOf("doc-1")
	if len(trs) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(trs), len(want))
	}
	for i, tr := range trs {
		if tr.To != want[i] || tr.Action != stage.ActionAdvance {
			t.Errorf("transition %d = %s via %s, want %s", i, tr.To, tr.Action, want[i])
		}
	}

	if len(h.repo.chunks["doc-1"]) != 2 || len(h.repo.vectors) != 2 {
		t.Errorf("chunks=%d vectors=%d, want 2 and 2", len(h.repo.chunks["doc-1"]), len(h.repo.vectors))
	}
	c, ok := h.repo.centroids["doc-1/openai"]
	if !ok || c.Dimensions != 2 || c.Values[0] != 0.5 || c.Values[1] != 1 {
		t.Errorf("centroid = %+v, want mean [0.5 1]", c)
	}
	if len(h.repo.leases) != 0 {
		t.Errorf("leases left behind: %v", h.repo.leases)
	}
}

func TestRun_DiscoveredIsExtracted(t *testing.T) {
	h := newHarness(t)
	h.addObject(t, "doc-1")

	res := h.run(t, Trigger{})
	if res.Processed != 1 {
		t.Fatalf("result = %+v, want 1 processed", res)
	}
	d := h.repo.doc(t, "doc-1")
	if d.Stage() != stage.Approved {
		t.Fatalf("stage = %s, want approved", d.Stage())
	}
	if d.RawText() != h.extractor.text || h.extractor.calls != 1 {
		t.Errorf("raw text = %q after %d extractions", d.RawText(), h.extractor.calls)
	}
}

func TestRun_LowScoreRejected(t *testing.T) {
	h := newHarness(t)
	h.chunker.drafts = []chunk.Draft{{Content: "Article 1. Court.", TokenCount: 5, Strategy: chunk.StrategyAdaptive}}
	h.addText(t, "doc-1")

	h.run(t, Trigger{})
	d := h.repo.doc(t, "doc-1")
	if d.Stage() != stage.Rejected || d.Approved() {
		t.Fatalf("stage = %s approved=%v, want rejected", d.Stage(), d.Approved())
	}
	if s := d.QualityScore(); s == nil || *s >= DefaultRejectThreshold {
		t.Errorf("score = %v, want below %d", s, DefaultRejectThreshold)
	}
}

func TestRun_ReviewWaitsAtQualityScored(t *testing.T) {
	h := newHarness(t)
	h.classifier.needsReview = true
	h.addText(t, "doc-1")

	res := h.run(t, Trigger{})
	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 1 processed", res)
	}
	d := h.repo.doc(t, "doc-1")
	if d.Stage() != stage.QualityScored || !d.NeedsReview() {
		t.Fatalf("stage = %s needsReview=%v, want quality_scored awaiting review", d.Stage(), d.NeedsReview())
	}

	if again := h.run(t, Trigger{}); again.Processed != 0 {
		t.Errorf("document awaiting review was claimed again: %+v", again)
	}
}

func TestRun_AmbiguousClassificationTagsTransition(t *testing.T) {
	h := newHarness(t)
	h.classifier.ambiguous = true
	h.classifier.needsReview = true
	h.addText(t, "doc-1")

	h.run(t, Trigger{})
	trs := h.repo.transitionsOf("doc-1")
	if len(trs) == 0 || trs[0].To != stage.Classified || trs[0].Reason != domain.ReasonClassificationAmbiguous {
		t.Fatalf("first transition = %+v, want classified with classification_ambiguous", trs)
	}
}

// --- Idempotence ---

func TestRun_ReprocessUnchangedSkipsWork(t *testing.T) {
	h := newHarness(t)
	h.addText(t, "doc-1")
	h.run(t, Trigger{})

	d := h.repo.doc(t, "doc-1")
	if _, err := d.Transition(stage.Extracted, stage.ActionReprocess, "", testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.repo.put(d)

	h.run(t, Trigger{})
	d = h.repo.doc(t, "doc-1")
	if d.Stage() != stage.Approved {
		t.Fatalf("stage = %s, want approved", d.Stage())
	}
	if h.repo.chunkWrites != 1 {
		t.Errorf("chunk set written %d times, want 1", h.repo.chunkWrites)
	}
	if n := h.embedder.callCount(); n != 1 {
		t.Errorf("embedder called %d times, want 1", n)
	}
	if d.Version() != 2 {
		t.Errorf("version = %d, want 2", d.Version())
	}
}

func TestRun_ChunkConfigChangeRechunksAndReembeds(t *testing.T) {
	h := newHarness(t)
	h.addText(t, "doc-1")
	h.run(t, Trigger{})

	d := h.repo.doc(t, "doc-1")
	if _, err := d.Transition(stage.Extracted, stage.ActionReprocess, "", testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.repo.put(d)
	h.chunker.fingerprint = "-v2"

	h.run(t, Trigger{})
	if h.repo.chunkWrites != 2 {
		t.Errorf("chunk set written %d times, want 2", h.repo.chunkWrites)
	}
	if n := h.embedder.callCount(); n != 2 {
		t.Errorf("embedder called %d times, want 2", n)
	}
}

// --- Failures ---

func TestRun_EmptyExtractionQuarantines(t *testing.T) {
	h := newHarness(t)
	h.extractor.text = "   "
	h.addObject(t, "doc-1")

	res := h.run(t, Trigger{})
	if res.Failed != 1 || res.Processed != 0 {
		t.Fatalf("result = %+v, want 1 failed", res)
	}
	d := h.repo.doc(t, "doc-1")
	if d.Stage() != stage.Quarantined {
		t.Fatalf("stage = %s, want quarantined", d.Stage())
	}
	if f := d.LastFailure(); f == nil || f.Code != domain.ReasonExtractionFailed {
		t.Errorf("last failure = %+v, want extraction_failed", f)
	}
	trs := h.repo.transitionsOf("doc-1")
	if len(trs) != 1 || trs[0].Reason != domain.ReasonExtractionFailed || trs[0].Action != stage.ActionQuarantine {
		t.Errorf("transitions = %+v, want one quarantine", trs)
	}
}

func TestRun_ContentTooShortQuarantines(t *testing.T) {
	h := newHarness(t)
	h.chunker.err = domain.NewReasonError(domain.ReasonContentTooShort, "text has 3 tokens, minimum is 15")
	h.addText(t, "doc-1")

	h.run(t, Trigger{})
	d := h.repo.doc(t, "doc-1")
	if d.Stage() != stage.Quarantined || d.LastFailure().Code != domain.ReasonContentTooShort {
		t.Fatalf("stage = %s failure = %+v, want quarantined content_too_short", d.Stage(), d.LastFailure())
	}
}

func TestRun_ProviderUnavailableRetriesThenQuarantines(t *testing.T) {
	h := newHarness(t)
	h.embedder.err = domain.NewReasonError(domain.ReasonProviderUnavailable, "openai: breaker open")
	h.addText(t, "doc-1")

	for attempt := 1; attempt < DefaultMaxRetries; attempt++ {
		if res := h.run(t, Trigger{}); res.Failed != 1 {
			t.Fatalf("run %d: result = %+v, want 1 failed", attempt, res)
		}
		d := h.repo.doc(t, "doc-1")
		if d.Stage() != stage.Chunked || d.RetryCount() != attempt {
			t.Fatalf("run %d: stage = %s retries = %d, want chunked with %d", attempt, d.Stage(), d.RetryCount(), attempt)
		}
		if d.LastFailure().Code != domain.ReasonProviderUnavailable {
			t.Fatalf("run %d: failure = %+v", attempt, d.LastFailure())
		}
	}

	h.run(t, Trigger{})
	d := h.repo.doc(t, "doc-1")
	if d.Stage() != stage.Quarantined {
		t.Fatalf("stage = %s, want quarantined", d.Stage())
	}
	trs := h.repo.transitionsOf("doc-1")
	if last := trs[len(trs)-1]; last.Reason != domain.ReasonRetriesExhausted {
		t.Errorf("last transition reason = %s, want retries_exhausted", last.Reason)
	}
}

func TestRun_SuccessResetsRetryCount(t *testing.T) {
	h := newHarness(t)
	h.embedder.err = domain.NewReasonError(domain.ReasonProviderUnavailable, "down")
	h.addText(t, "doc-1")
	h.run(t, Trigger{})

	h.embedder.err = nil
	h.run(t, Trigger{})
	d := h.repo.doc(t, "doc-1")
	if d.Stage() != stage.Approved || d.RetryCount() != 0 || d.LastFailure() != nil {
		t.Fatalf("stage = %s retries = %d failure = %+v", d.Stage(), d.RetryCount(), d.LastFailure())
	}
}

func TestRun_LeaseLostStops(t *testing.T) {
	h := newHarness(t)
	h.repo.conflict = true
	h.addText(t, "doc-1")

	res := h.run(t, Trigger{})
	if res.Failed != 1 {
		t.Fatalf("result = %+v, want 1 failed", res)
	}
	if d := h.repo.doc(t, "doc-1"); d.Stage() != stage.Extracted || d.RetryCount() != 0 {
		t.Errorf("stage = %s retries = %d, want untouched document", d.Stage(), d.RetryCount())
	}
}

// --- Trigger ---

func TestRun_MaxItemsBoundsAttempts(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		h.addText(t, id)
	}

	res := h.run(t, Trigger{BatchSize: 1, MaxItems: 2})
	if res.Processed != 2 {
		t.Fatalf("result = %+v, want 2 processed", res)
	}
	if d := h.repo.doc(t, "doc-3"); d.Stage() != stage.Extracted {
		t.Errorf("doc-3 stage = %s, want extracted", d.Stage())
	}
}

func TestRun_FailedDocumentNotRetriedInSameRun(t *testing.T) {
	h := newHarness(t)
	h.embedder.err = domain.NewReasonError(domain.ReasonProviderUnavailable, "down")
	h.addText(t, "doc-1")

	res := h.run(t, Trigger{BatchSize: 1, MaxItems: 5})
	if res.Failed != 1 || res.Processed != 0 {
		t.Fatalf("result = %+v, want a single failed attempt", res)
	}
	if n := h.embedder.callCount(); n != 1 {
		t.Errorf("embedder called %d times, want 1", n)
	}
}

func TestRun_CategoryFilter(t *testing.T) {
	h := newHarness(t)
	h.addText(t, "doc-1")
	d, err := knowledge.New("doc-2", "Arrêt", "Attendu que la cour ...", "jurisprudence",
		knowledge.Source{Kind: "docx"}, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.repo.put(d)

	h.run(t, Trigger{Category: "jurisprudence"})
	if got := h.repo.doc(t, "doc-1").Stage(); got != stage.Extracted {
		t.Errorf("doc-1 stage = %s, want extracted", got)
	}
	if got := h.repo.doc(t, "doc-2").Stage(); got == stage.Extracted {
		t.Errorf("doc-2 was not processed")
	}
}

func TestRun_Validation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		tr   Trigger
	}{
		{"batch too large", Trigger{BatchSize: MaxBatchSize + 1}},
		{"negative max items", Trigger{MaxItems: -1}},
		{"unknown category", Trigger{Category: "recettes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.Run(context.Background(), tt.tr); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRun_ClaimError(t *testing.T) {
	h := newHarness(t)
	h.repo.claimErr = errors.New("connection refused")

	if _, err := h.svc.Run(context.Background(), Trigger{}); err == nil {
		t.Fatal("expected error")
	}
}
