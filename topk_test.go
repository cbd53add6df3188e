package replaydb

import "testing"

func TestTopKHeapKeepsHighestScores(t *testing.T) {
	h := newTopKHeap(3)
	scores := []uint64{5, 1, 9, 3, 7, 2, 8}
	for i, s := range scores {
		h.offer(candidate{rowIndex: i, result: matchResult{sort: s}})
	}

	got := h.sorted()
	if len(got) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(got))
	}
	want := []uint64{9, 8, 7}
	for i, w := range want {
		if got[i].result.sort != w {
			t.Fatalf("position %d: got %d, want %d", i, got[i].result.sort, w)
		}
	}
}

func TestTopKHeapCapacityZeroDiscardsEverything(t *testing.T) {
	h := newTopKHeap(0)
	h.offer(candidate{result: matchResult{sort: 100}})
	if len(h.sorted()) != 0 {
		t.Fatalf("expected no survivors with zero capacity")
	}
}

func TestTopKHeapFewerItemsThanCapacity(t *testing.T) {
	h := newTopKHeap(10)
	h.offer(candidate{result: matchResult{sort: 1}})
	h.offer(candidate{result: matchResult{sort: 2}})

	got := h.sorted()
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	if got[0].result.sort != 2 || got[1].result.sort != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}
}
