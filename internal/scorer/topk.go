package scorer

import (
	"container/heap"
	"sort"
)

// TopK returns the indices of the k highest scores, best first. Equal
// scores go to the lower index. k <= 0 or k >= len(scores) sorts everything.
func TopK(scores []float64, k int) []int {
	if k <= 0 || k >= len(scores) {
		idx := make([]int, len(scores))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return scores[idx[a]] > scores[idx[b]]
		})
		return idx
	}
	h := &indexHeap{scores: scores}
	for i := range scores {
		if h.Len() < k {
			heap.Push(h, i)
			continue
		}
		if h.worse(h.idx[0], i) {
			h.idx[0] = i
			heap.Fix(h, 0)
		}
	}
	result := make([]int, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(int)
	}
	return result
}

// indexHeap is a min-heap of score indices whose root is the worst kept
// entry.
type indexHeap struct {
	scores []float64
	idx    []int
}

// worse reports whether a ranks below b.
func (h *indexHeap) worse(a, b int) bool {
	if h.scores[a] != h.scores[b] {
		return h.scores[a] < h.scores[b]
	}
	return a > b
}

func (h *indexHeap) Len() int { return len(h.idx) }

func (h *indexHeap) Less(i, j int) bool { return h.worse(h.idx[i], h.idx[j]) }

func (h *indexHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }

func (h *indexHeap) Push(x any) {
	h.idx = append(h.idx, x.(int))
}

func (h *indexHeap) Pop() any {
	old := h.idx
	n := len(old)
	item := old[n-1]
	h.idx = old[:n-1]
	return item
}
