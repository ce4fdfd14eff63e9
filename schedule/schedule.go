package schedule

import (
	"container/heap"
	"time"
)

// Queue tracks when each key was last touched and yields the oldest one.
// Under a uniform lifetime the least recently touched entry is the next
// to expire. Keys touched at the same instant order by insertion
// sequence.
//
// Queue is not safe for concurrent use; the owning map guards it.
type Queue[K comparable] struct {
	heap  *touchHeap[K]
	index map[K]*queueItem[K]
}

func New[K comparable]() *Queue[K] {
	h := &touchHeap[K]{}
	heap.Init(h)
	return &Queue[K]{
		heap:  h,
		index: make(map[K]*queueItem[K]),
	}
}

// Touch records that key was inserted or refreshed at the given time.
// seq is the key's insertion sequence and is fixed for the life of the
// entry.
func (q *Queue[K]) Touch(key K, at time.Time, seq uint64) {
	if existing, ok := q.index[key]; ok {
		existing.touchedAt = at
		heap.Fix(q.heap, existing.index)
		return
	}

	item := &queueItem[K]{key: key, touchedAt: at, seq: seq}
	heap.Push(q.heap, item)
	q.index[key] = item
}

func (q *Queue[K]) Remove(key K) {
	if existing, ok := q.index[key]; ok {
		heap.Remove(q.heap, existing.index)
		delete(q.index, key)
	}
}

// Oldest peeks at the least recently touched key without removing it.
func (q *Queue[K]) Oldest() (key K, touchedAt time.Time, ok bool) {
	if q.heap.Len() == 0 {
		return key, touchedAt, false
	}

	item := (*q.heap)[0]
	return item.key, item.touchedAt, true
}

func (q *Queue[K]) Len() int {
	return q.heap.Len()
}

func (q *Queue[K]) Clear() {
	q.heap = &touchHeap[K]{}
	heap.Init(q.heap)
	q.index = make(map[K]*queueItem[K])
}

type queueItem[K comparable] struct {
	key       K
	touchedAt time.Time
	seq       uint64
	index     int
}

type touchHeap[K comparable] []*queueItem[K]

func (h touchHeap[K]) Len() int { return len(h) }

func (h touchHeap[K]) Less(i, j int) bool {
	if h[i].touchedAt.Equal(h[j].touchedAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].touchedAt.Before(h[j].touchedAt)
}

func (h touchHeap[K]) Swap(i, j int) { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }

func (h *touchHeap[K]) Push(x any) {
	item := x.(*queueItem[K])
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *touchHeap[K]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}
