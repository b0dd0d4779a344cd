package similarity

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/lexdex/internal/domain"
)

func TestNew(t *testing.T) {
	if _, err := New("a", "a", 0.9); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("self relation: %v", err)
	}
	if _, err := New("a", "b", 1.2); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("strength > 1: %v", err)
	}
	r, err := New("a", "b", 0.88)
	if err != nil {
		t.Fatal(err)
	}
	m := r.Mirror()
	if m.SourceID != "b" || m.TargetID != "a" || m.Strength != 0.88 {
		t.Errorf("Mirror() = %+v", m)
	}
}

func TestMirrored(t *testing.T) {
	rels := []Relation{
		{SourceID: "a", TargetID: "b", Strength: 0.86},
		{SourceID: "b", TargetID: "a", Strength: 0.91},
		{SourceID: "a", TargetID: "c", Strength: 0.87},
	}
	got := Mirrored(rels)
	if len(got) != 4 {
		t.Fatalf("expected 4 edges, got %d: %+v", len(got), got)
	}
	idx := map[string]float64{}
	for _, r := range got {
		idx[r.SourceID+">"+r.TargetID] = r.Strength
	}
	if idx["a>b"] != 0.91 || idx["b>a"] != 0.91 {
		t.Errorf("strongest strength should win both directions: %v", idx)
	}
	if idx["c>a"] != 0.87 {
		t.Errorf("missing mirrored edge c>a: %v", idx)
	}
}
