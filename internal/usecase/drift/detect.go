package drift

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/lexdex/internal/domain/drift"
)

// zScore is the one-sided two-proportion z statistic of a rise from
// x1/n1 (baseline) to x2/n2 (current). Negative means a fall.
func zScore(x1, n1, x2, n2 int) float64 {
	if n1 <= 0 || n2 <= 0 {
		return 0
	}
	p1, p2 := float64(x1)/float64(n1), float64(x2)/float64(n2)
	p := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(p * (1 - p) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0
	}
	return (p2 - p1) / se
}

// welchT is Welch's t statistic of a fall in mean from m1 (baseline) to m2.
// Both windows hold at least MinSamples values, so it is read against the
// normal critical value. Identical samples with different means are +Inf.
func welchT(m1, v1 float64, n1 int, m2, v2 float64, n2 int) float64 {
	if n1 <= 0 || n2 <= 0 {
		return 0
	}
	se := math.Sqrt(v1/float64(n1) + v2/float64(n2))
	if se == 0 {
		switch {
		case m1 > m2:
			return math.Inf(1)
		case m1 < m2:
			return math.Inf(-1)
		}
		return 0
	}
	return (m1 - m2) / se
}

func grade(change, warn, crit float64) (drift.Severity, bool) {
	switch {
	case change >= crit:
		return drift.SeverityCritical, true
	case change >= warn:
		return drift.SeverityWarning, true
	default:
		return "", false
	}
}

// detect compares the windows and returns the alerts that pass the
// sample-size, threshold and significance checks.
func detect(base, cur drift.WindowStats, cfg Config) []drift.Alert {
	var alerts []drift.Alert

	// similarity: relative drop over answered queries, confirmed by Welch's t
	nb, nc := base.Queries-base.Abstained, cur.Queries-cur.Abstained
	if nb >= cfg.MinSamples && nc >= cfg.MinSamples && base.MeanSimilarity() > 0 {
		b, c := base.MeanSimilarity(), cur.MeanSimilarity()
		drop := (b - c) / b
		t := welchT(b, base.SimilarityVariance(), nb, c, cur.SimilarityVariance(), nc)
		if sev, ok := grade(drop, cfg.SimilarityWarnDrop, cfg.SimilarityCritDrop); ok && t >= cfg.ZCritical {
			alerts = append(alerts, drift.Alert{
				Metric: drift.MeanSimilarity, Severity: sev, Baseline: b, Current: c, Change: -drop,
				Message: fmt.Sprintf("mean similarity dropped %.1f%%", drop*100),
			})
		}
	}

	rise := func(m drift.Metric, x1, n1, x2, n2 int, b, c float64) {
		if n1 < cfg.MinSamples || n2 < cfg.MinSamples {
			return
		}
		sev, ok := grade(c-b, cfg.RateWarnRise, cfg.RateCritRise)
		if !ok || zScore(x1, n1, x2, n2) < cfg.ZCritical {
			return
		}
		alerts = append(alerts, drift.Alert{
			Metric: m, Severity: sev, Baseline: b, Current: c, Change: c - b,
			Message: fmt.Sprintf("%s rose %.1f points", m, (c-b)*100),
		})
	}
	rise(drift.AbstentionRate, base.Abstained, base.Queries, cur.Abstained, cur.Queries,
		base.AbstentionRate(), cur.AbstentionRate())
	rise(drift.HallucinationRate, base.Flagged, base.Answers, cur.Flagged, cur.Answers,
		base.HallucinationRate(), cur.HallucinationRate())

	if base.Feedback >= cfg.MinSamples && cur.Feedback >= cfg.MinSamples {
		b, c := base.Sentiment(), cur.Sentiment()
		sev, ok := grade(b-c, cfg.SentimentWarnDrop, cfg.SentimentCritDrop)
		if ok && -zScore(base.Satisfied, base.Feedback, cur.Satisfied, cur.Feedback) >= cfg.ZCritical {
			alerts = append(alerts, drift.Alert{
				Metric: drift.FeedbackSentiment, Severity: sev, Baseline: b, Current: c, Change: c - b,
				Message: fmt.Sprintf("feedback sentiment dropped %.1f points", (b-c)*100),
			})
		}
	}
	return alerts
}

func verdict(alerts []drift.Alert) drift.Status {
	st := drift.StatusStable
	for _, a := range alerts {
		if a.Severity == drift.SeverityCritical {
			return drift.StatusDegraded
		}
		st = drift.StatusWarning
	}
	return st
}
