package result

import (
	"reflect"
	"testing"
)

func TestDocumentIDs(t *testing.T) {
	hits := []Hit{{DocumentID: "a"}, {DocumentID: "b"}, {DocumentID: "a"}, {DocumentID: "c"}}
	if got := DocumentIDs(hits); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("DocumentIDs = %v", got)
	}
}

func TestMeanSimilarity(t *testing.T) {
	if got := MeanSimilarity(nil); got != 0 {
		t.Errorf("empty = %f", got)
	}
	hits := []Hit{{Similarity: 0.9}, {Similarity: 0.7}}
	if got := MeanSimilarity(hits); got < 0.7999 || got > 0.8001 {
		t.Errorf("MeanSimilarity = %f, want 0.8", got)
	}
}
