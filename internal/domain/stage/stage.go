package stage

import (
	"fmt"

	"github.com/kailas-cloud/lexdex/internal/domain"
)

// Stage is a knowledge document's position in the processing pipeline.
type Stage string

// Pipeline stages in processing order.
const (
	Discovered    Stage = "discovered"
	Extracted     Stage = "extracted"
	Classified    Stage = "classified"
	Chunked       Stage = "chunked"
	Embedded      Stage = "embedded"
	QualityScored Stage = "quality_scored"
	Approved      Stage = "approved"
	Rejected      Stage = "rejected"
	Quarantined   Stage = "quarantined"
)

// Action names the reason a transition happened.
type Action string

// Transition actions.
const (
	ActionAdvance    Action = "advance"
	ActionQuarantine Action = "quarantine"
	ActionReprocess  Action = "reprocess"
	ActionApprove    Action = "approve"
	ActionRevoke     Action = "revoke"
	ActionReclassify Action = "reclassify"
)

// Ordered lists every stage in funnel order.
var Ordered = []Stage{
	Discovered, Extracted, Classified, Chunked, Embedded,
	QualityScored, Approved, Rejected, Quarantined,
}

var next = map[Stage]Stage{
	Discovered: Extracted,
	Extracted:  Classified,
	Classified: Chunked,
	Chunked:    Embedded,
	Embedded:   QualityScored,
}

// Parse validates a stage name.
func Parse(s string) (Stage, error) {
	for _, st := range Ordered {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q: %w", s, domain.ErrValidation)
}

// Next returns the forward successor of s for the automatic pipeline.
// quality_scored has two successors and is resolved by the scoring decision.
func (s Stage) Next() (Stage, bool) {
	n, ok := next[s]
	return n, ok
}

// IsTerminal reports whether s ends automatic processing.
func (s Stage) IsTerminal() bool {
	return s == Approved || s == Rejected
}

// IsPending reports whether batch runs still have work to do for s.
func (s Stage) IsPending() bool {
	_, ok := next[s]
	return ok || s == QualityScored
}

// Pending lists stages a batch run selects documents from.
func Pending() []Stage {
	out := make([]Stage, 0, len(next)+1)
	for _, st := range Ordered {
		if st.IsPending() {
			out = append(out, st)
		}
	}
	return out
}

// CheckTransition validates from → to under action.
func CheckTransition(from, to Stage, action Action) error {
	ok := false
	switch action {
	case ActionAdvance:
		if n, has := next[from]; has {
			ok = n == to
		} else if from == QualityScored {
			ok = to == Approved || to == Rejected
		}
	case ActionQuarantine:
		ok = to == Quarantined && !from.IsTerminal() && from != Quarantined
	case ActionReprocess, ActionReclassify:
		ok = to == Extracted && (from.IsTerminal() || from == Quarantined)
	case ActionApprove:
		ok = to == Approved && (from == QualityScored || from == Rejected)
	case ActionRevoke:
		ok = to == Rejected && from == Approved
	}
	if !ok {
		return fmt.Errorf("%s → %s via %s: %w", from, to, action, domain.ErrInvalidTransition)
	}
	return nil
}
