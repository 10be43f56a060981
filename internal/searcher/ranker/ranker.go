// Package ranker defines query results and their ordering: rank
// descending, ties broken by ascending document id.
package ranker

import (
	"container/heap"
	"sort"
)

// Result is one matching document. Rank is a raw term-frequency sum.
type Result struct {
	DocID   uint32 `json:"doc_id"`
	DocName string `json:"doc_name"`
	Rank    int    `json:"rank"`
}

// Before reports whether a is ordered ahead of b.
func Before(a, b Result) bool {
	if a.Rank != b.Rank {
		return a.Rank > b.Rank
	}
	return a.DocID < b.DocID
}

// Sort orders results in place.
func Sort(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		return Before(results[i], results[j])
	})
}

// TopK returns the best limit results in order without sorting the whole
// slice. A non-positive limit returns everything, sorted.
func TopK(results []Result, limit int) []Result {
	if limit <= 0 || limit >= len(results) {
		out := append([]Result(nil), results...)
		Sort(out)
		return out
	}
	h := &resultHeap{}
	heap.Init(h)
	for _, r := range results {
		heap.Push(h, r)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	out := make([]Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Result)
	}
	return out
}

// resultHeap is a min-heap under Before: the root is the worst result kept.
type resultHeap []Result

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool { return Before(h[j], h[i]) }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(Result))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
