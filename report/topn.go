// Package report implements the bounded top-N selection the flusher
// (component H) uses to bound how many (pc, value) or PC-pair views it
// emits per kernel, direction, and analysis type.
package report

import (
	"container/heap"
	"sort"
)

// View is one reported redundancy entry: a resolved source location, its
// observed count, and — for spatial views — the canonicalized value that
// recurred. Temporal views leave Value at zero; their PCOffset names the
// current PC of the (previous, current) pair and Count is the summed
// occurrence count across all values seen at that pair.
type View struct {
	FunctionIndex uint32
	PCOffset      uint64
	Count         uint64
	Value         uint64
}

type entry struct {
	view View
	seq  uint64
}

// minHeap keeps the smallest count at the root so Collector can evict the
// weakest entry in O(log n) once it exceeds its limit. Ties are broken by
// insertion sequence, so the heap's eviction order is stable.
type minHeap []entry

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool {
	if h[i].view.Count != h[j].view.Count {
		return h[i].view.Count < h[j].view.Count
	}

	return h[i].seq < h[j].seq
}

func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]

	return last
}

// Collector bounds the number of retained views to a configured limit,
// keeping the highest-count views seen so far.
type Collector struct {
	limit   int
	heap    minHeap
	nextSeq uint64
}

// NewCollector returns a Collector retaining at most limit views. A
// non-positive limit retains nothing.
func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

// Add offers v to the collector. If the collector is over its limit after
// adding, the weakest view (lowest count, earliest inserted among ties) is
// evicted.
func (c *Collector) Add(v View) {
	if c.limit <= 0 {
		return
	}

	heap.Push(&c.heap, entry{view: v, seq: c.nextSeq})
	c.nextSeq++

	if len(c.heap) > c.limit {
		heap.Pop(&c.heap)
	}
}

// Views returns the retained views ordered by descending count, ties
// broken by insertion order (earliest first).
func (c *Collector) Views() []View {
	items := make([]entry, len(c.heap))
	copy(items, c.heap)

	sort.Slice(items, func(i, j int) bool {
		if items[i].view.Count != items[j].view.Count {
			return items[i].view.Count > items[j].view.Count
		}

		return items[i].seq < items[j].seq
	})

	out := make([]View, len(items))
	for i, e := range items {
		out[i] = e.view
	}

	return out
}
