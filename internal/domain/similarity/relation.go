package similarity

import (
	"fmt"

	"github.com/kailas-cloud/lexdex/internal/domain"
)

// Relation is a directed "similar to" edge between two documents.
// Relations only boost ranking; they never filter.
type Relation struct {
	SourceID  string
	TargetID  string
	Strength  float64
	Validated bool
}

// New validates a relation.
func New(sourceID, targetID string, strength float64) (Relation, error) {
	if sourceID == "" || targetID == "" {
		return Relation{}, fmt.Errorf("relation endpoints are required: %w", domain.ErrValidation)
	}
	if sourceID == targetID {
		return Relation{}, fmt.Errorf("self relation on %s: %w", sourceID, domain.ErrValidation)
	}
	if strength < 0 || strength > 1 {
		return Relation{}, fmt.Errorf("strength %.3f outside 0..1: %w", strength, domain.ErrValidation)
	}
	return Relation{SourceID: sourceID, TargetID: targetID, Strength: strength}, nil
}

// Mirror returns the reverse edge with the same strength.
func (r Relation) Mirror() Relation {
	return Relation{SourceID: r.TargetID, TargetID: r.SourceID, Strength: r.Strength, Validated: r.Validated}
}

// Mirrored expands relations so every edge is present in both directions,
// keeping the strongest strength per ordered pair.
func Mirrored(rels []Relation) []Relation {
	type pair struct{ a, b string }
	best := make(map[pair]int, len(rels)*2)
	out := make([]Relation, 0, len(rels)*2)
	add := func(r Relation) {
		k := pair{r.SourceID, r.TargetID}
		if i, ok := best[k]; ok {
			if r.Strength > out[i].Strength {
				out[i] = r
			}
			return
		}
		best[k] = len(out)
		out = append(out, r)
	}
	for _, r := range rels {
		add(r)
		add(r.Mirror())
	}
	return out
}
