package knowledge

import (
	"time"

	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
)

// ClaimFilter selects documents for a batch run.
type ClaimFilter struct {
	Stages   []stage.Stage
	Category *Category
	Limit    int
	// Exclude skips documents already attempted by the same run.
	Exclude []string
	// Token identifies the lease holder; Until is when the lease expires.
	Token string
	Until time.Time
	Now   time.Time
	// quality_scored documents are claimed only when their score decides
	// the outcome: >= Approve or < Reject, and no review is pending.
	ApproveThreshold float64
	RejectThreshold  float64
}

// Commit is the atomic result of one stage run.
type Commit struct {
	Document    *Document
	LeaseToken  string
	Transitions []Transition
	// Chunks replaces the whole chunk set when non-nil.
	Chunks   *[]chunk.Chunk
	Vectors  []chunk.Vector
	Centroid *chunk.Centroid
}

// StageStat aggregates the active documents of one stage.
type StageStat struct {
	Stage     stage.Stage
	Documents int
	AvgDwell  time.Duration
	// Stuck counts documents older than the stuck threshold.
	Stuck         int
	StuckAvgDwell time.Duration
	OldestStuck   *time.Time
}
