package drift

import "time"

// Metric names a monitored quality signal.
type Metric string

// Monitored metrics.
const (
	MeanSimilarity    Metric = "mean_similarity"
	AbstentionRate    Metric = "abstention_rate"
	HallucinationRate Metric = "hallucination_rate"
	FeedbackSentiment Metric = "feedback_sentiment"
)

// Severity grades an alert.
type Severity string

// Alert severities.
const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status is the overall drift verdict.
type Status string

// Drift statuses.
const (
	StatusStable   Status = "stable"
	StatusWarning  Status = "warning"
	StatusDegraded Status = "degraded"
)

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// WindowStats holds raw observations aggregated over one window.
// SimilaritySum only covers queries that returned results.
type WindowStats struct {
	Window Window `json:"window"`

	Queries         int     `json:"queries"`
	SimilaritySum   float64 `json:"-"`
	SimilaritySumSq float64 `json:"-"`
	Abstained       int     `json:"abstained"`

	Answers int `json:"answers"`
	Flagged int `json:"flagged"`

	Feedback  int `json:"feedback"`
	Satisfied int `json:"satisfied"`
}

// MeanSimilarity returns the average similarity of answered queries.
// Abstained queries carry no similarity and are left out.
func (w WindowStats) MeanSimilarity() float64 { return ratio(w.SimilaritySum, w.Queries-w.Abstained) }

// SimilarityVariance returns the sample variance of answered queries'
// similarity, or 0 with fewer than two of them.
func (w WindowStats) SimilarityVariance() float64 {
	n := w.Queries - w.Abstained
	if n < 2 {
		return 0
	}
	mean := w.MeanSimilarity()
	return max((w.SimilaritySumSq-float64(n)*mean*mean)/float64(n-1), 0)
}

// AbstentionRate returns the share of queries with no result.
func (w WindowStats) AbstentionRate() float64 { return ratio(float64(w.Abstained), w.Queries) }

// HallucinationRate returns the share of answers with unverified citations.
func (w WindowStats) HallucinationRate() float64 { return ratio(float64(w.Flagged), w.Answers) }

// Sentiment returns the share of feedback rated 4 or 5.
func (w WindowStats) Sentiment() float64 { return ratio(float64(w.Satisfied), w.Feedback) }

func ratio(num float64, den int) float64 {
	if den <= 0 {
		return 0
	}
	return num / float64(den)
}

// Alert is a detected regression between the baseline and current windows.
type Alert struct {
	Metric   Metric   `json:"metric"`
	Severity Severity `json:"severity"`
	Baseline float64  `json:"baseline"`
	Current  float64  `json:"current"`
	Change   float64  `json:"change"`
	Message  string   `json:"message"`
}

// Report compares the trailing window against the preceding baseline window.
type Report struct {
	Status      Status      `json:"status"`
	Current     WindowStats `json:"current"`
	Baseline    WindowStats `json:"baseline"`
	Alerts      []Alert     `json:"alerts"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// Feedback is a user rating of an answer.
type Feedback struct {
	Rating  int
	Comment string
	At      time.Time
}

// QueryEvent records one retrieval for monitoring.
type QueryEvent struct {
	MeanSimilarity float64
	Results        int
	Abstained      bool
	At             time.Time
}

// AnswerCheck records one citation validation for monitoring.
type AnswerCheck struct {
	References int
	Unverified int
	Flagged    bool
	At         time.Time
}
