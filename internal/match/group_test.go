package match

import (
	"reflect"
	"testing"

	"mediadupes/internal/models"
)

func TestGroupPairs_Empty(t *testing.T) {
	if groups := GroupPairs(nil); groups != nil {
		t.Errorf("expected nil for no pairs, got %v", groups)
	}
}

func TestGroupPairs(t *testing.T) {
	pairs := []models.DuplicatePair{
		{IDA: "d", IDB: "e", Similarity: 99},
		{IDA: "b", IDB: "c", Similarity: 95},
		{IDA: "a", IDB: "b", Similarity: 90},
	}

	groups := GroupPairs(pairs)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	if groups[0].ID != 1 || !reflect.DeepEqual(groups[0].IDs, []string{"d", "e"}) {
		t.Errorf("group 1 = %+v, want ids [d e]", groups[0])
	}
	if groups[1].ID != 2 || !reflect.DeepEqual(groups[1].IDs, []string{"a", "b", "c"}) {
		t.Errorf("group 2 = %+v, want ids [a b c]", groups[1])
	}
	if len(groups[1].Pairs) != 2 {
		t.Errorf("group 2 should hold 2 pairs, got %d", len(groups[1].Pairs))
	}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)

	// Initially all separate
	for i := 0; i < 5; i++ {
		if uf.find(i) != i {
			t.Errorf("expected %d to be its own root", i)
		}
	}

	uf.union(0, 1)
	if uf.find(0) != uf.find(1) {
		t.Error("expected 0 and 1 to be in same group")
	}

	uf.union(2, 3)
	if uf.find(2) != uf.find(3) {
		t.Error("expected 2 and 3 to be in same group")
	}

	// 4 should still be separate
	if uf.find(4) == uf.find(0) || uf.find(4) == uf.find(2) {
		t.Error("expected 4 to be separate")
	}

	uf.union(1, 3)
	if uf.find(0) != uf.find(2) {
		t.Error("expected all of 0,1,2,3 to be in same group")
	}
}
