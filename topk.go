package replaydb

import (
	"container/heap"
	"sort"
)

// candidate is one row that survived filtering during a query, paired
// with the match data needed to both rank it and re-fetch its record.
type candidate struct {
	rowIndex int
	result   matchResult
}

// topKHeap is a bounded min-heap on candidate.result.sort: once it holds
// capacity candidates, offering a new one only keeps it if it beats the
// current weakest survivor. This replaces a full qsort on every insert
// with an O(log K) comparison, the same external contract (top-K by sort
// descending, ties unordered) at a lower cost per row scanned.
type topKHeap struct {
	capacity int
	items    []candidate
}

func newTopKHeap(capacity int) *topKHeap {
	return &topKHeap{capacity: capacity, items: make([]candidate, 0, capacity)}
}

// offer considers c for inclusion in the top K. It is a no-op if
// capacity is zero.
func (t *topKHeap) offer(c candidate) {
	if t.capacity <= 0 {
		return
	}
	if len(t.items) < t.capacity {
		heap.Push(t, c)
		return
	}
	if c.result.sort > t.items[0].result.sort {
		t.items[0] = c
		heap.Fix(t, 0)
	}
}

// sorted returns the held candidates ordered by sort descending.
func (t *topKHeap) sorted() []candidate {
	out := make([]candidate, len(t.items))
	copy(out, t.items)
	sort.Slice(out, func(i, j int) bool { return out[i].result.sort > out[j].result.sort })
	return out
}

// heap.Interface implementation, ordered by sort ascending so items[0]
// is always the current weakest survivor.

func (t *topKHeap) Len() int { return len(t.items) }

func (t *topKHeap) Less(i, j int) bool {
	return t.items[i].result.sort < t.items[j].result.sort
}

func (t *topKHeap) Swap(i, j int) {
	t.items[i], t.items[j] = t.items[j], t.items[i]
}

func (t *topKHeap) Push(x any) {
	t.items = append(t.items, x.(candidate))
}

func (t *topKHeap) Pop() any {
	n := len(t.items)
	x := t.items[n-1]
	t.items = t.items[:n-1]
	return x
}
