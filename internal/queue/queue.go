// Package queue implements a small binary heap used by the k-bounded
// top-heap visitor (walk.TopKVisitor).
// Value-based storage (no pointer indirection per item) and an
// explicit isMaxHeap flag stand in for a separate type per heap order.
package queue

import "container/heap"

var _ heap.Interface = (*PriorityQueue)(nil)

// Item is one entry in the queue: a candidate's distance from the
// query value plus an int64 key the caller uses to recover it
// (walk.TopKVisitor stores the sequence number of the visit).
type Item struct {
	Index    int64
	Distance float64
}

// PriorityQueue is a binary heap over Items, ordered by Distance.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin returns an empty min-heap (smallest Distance on top).
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{items: make([]Item, 0, capacity)}
}

// NewMax returns an empty max-heap (largest Distance on top) -- used
// as the eviction heap for a k-bounded top-K visitor: when full, the
// worst-so-far candidate sits on top for O(log k) eviction.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{isMaxHeap: true, items: make([]Item, 0, capacity)}
}

func (pq *PriorityQueue) Len() int { return len(pq.items) }

func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.items[i].Distance > pq.items[j].Distance
	}
	return pq.items[i].Distance < pq.items[j].Distance
}

func (pq *PriorityQueue) Swap(i, j int) { pq.items[i], pq.items[j] = pq.items[j], pq.items[i] }

func (pq *PriorityQueue) Push(x any) { pq.items = append(pq.items, x.(Item)) }

func (pq *PriorityQueue) Pop() any {
	n := len(pq.items)
	item := pq.items[n-1]
	pq.items = pq.items[:n-1]
	return item
}

// PushItem inserts item, maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item Item) { heap.Push(pq, item) }

// PopItem removes and returns the top item.
func (pq *PriorityQueue) PopItem() (Item, bool) {
	if pq.Len() == 0 {
		return Item{}, false
	}
	return heap.Pop(pq).(Item), true
}

// Top returns the top item without removing it.
func (pq *PriorityQueue) Top() (Item, bool) {
	if pq.Len() == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// Items returns the current contents in heap order (not sorted).
func (pq *PriorityQueue) Items() []Item { return pq.items }
