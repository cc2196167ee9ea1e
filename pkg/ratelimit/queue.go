package ratelimit

import (
	"container/heap"
	"time"
)

// acquireResult resolves one queued request.
type acquireResult struct {
	err error
}

// waiter is a caller blocked on budget. A waiter is in exactly one of three
// states: queued (index >= 0), claimed for dispatch, or removed by timeout.
// Every removal goes through requestQueue.remove under the limiter mutex, so
// a waiter can never be resolved twice.
type waiter struct {
	id         uint64
	priority   int
	seq        uint64 // FIFO tie-break within a priority
	cost       float64
	enqueuedAt time.Time
	done       chan acquireResult // buffered, capacity 1
	index      int                // heap index, -1 once removed
}

// requestQueue is a priority-ordered waiting list. Lower priority values are
// served first; ties are broken by enqueue order.
type requestQueue struct {
	heap waiterHeap
	max  int
}

func newRequestQueue(max int) *requestQueue {
	return &requestQueue{max: max}
}

func (q *requestQueue) len() int { return len(q.heap) }

func (q *requestQueue) full() bool {
	return q.max > 0 && len(q.heap) >= q.max
}

func (q *requestQueue) push(w *waiter) {
	heap.Push(&q.heap, w)
}

// peek returns the highest-priority waiter without removing it.
func (q *requestQueue) peek() *waiter {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// pop removes and returns the highest-priority waiter.
func (q *requestQueue) pop() *waiter {
	return heap.Pop(&q.heap).(*waiter)
}

// remove claims the waiter with the given id. It returns false when the
// waiter is no longer queued, meaning the dispatch loop already claimed it.
func (q *requestQueue) remove(id uint64) bool {
	for _, w := range q.heap {
		if w.id == id {
			heap.Remove(&q.heap, w.index)
			return true
		}
	}
	return false
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}
