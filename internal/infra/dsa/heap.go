// Package dsa provides small, dependency-free data structures shared by
// floaty's infrastructure layer.
package dsa

import "time"

// HeapItem is an element of a PriorityQueue.
type HeapItem struct {
	Key         string    // Caller-defined identity of the item
	Priority    int       // Lower value dequeues first
	SubmittedAt time.Time // Insertion time, used to break priority ties FIFO
	Value       any       // Payload
}

// PriorityQueueConfig configures optional age-based priority boosting.
// Leave BoostInterval zero to get a plain min-heap ordered by Priority with
// insertion-order tie-breaking — this is what floaty's dissemination queue
// uses, since update counts need no starvation correction.
type PriorityQueueConfig struct {
	BoostInterval time.Duration
	MaxBoost      int
}

// PriorityQueue is an array-backed binary min-heap. It is not safe for
// concurrent use; callers that need concurrency safety add their own lock,
// as floaty's update buffer does.
type PriorityQueue struct {
	heap   []HeapItem
	config PriorityQueueConfig
	now    func() time.Time
}

// NewPriorityQueue creates an empty priority queue.
func NewPriorityQueue(cfg PriorityQueueConfig) *PriorityQueue {
	return &PriorityQueue{
		config: cfg,
		now:    time.Now,
	}
}

// Push adds an item to the queue. O(log n).
func (pq *PriorityQueue) Push(item HeapItem) {
	if item.SubmittedAt.IsZero() {
		item.SubmittedAt = pq.now()
	}
	pq.heap = append(pq.heap, item)
	pq.siftUp(len(pq.heap) - 1)
}

// Pop removes and returns the lowest-priority-value item. O(log n).
func (pq *PriorityQueue) Pop() (HeapItem, bool) {
	if len(pq.heap) == 0 {
		return HeapItem{}, false
	}

	top := pq.heap[0]
	last := len(pq.heap) - 1
	pq.heap[0] = pq.heap[last]
	pq.heap = pq.heap[:last]
	if len(pq.heap) > 0 {
		pq.siftDown(0)
	}
	return top, true
}

// Len returns the number of items in the queue.
func (pq *PriorityQueue) Len() int {
	return len(pq.heap)
}

// effectivePriority applies age-based boosting when configured.
func (pq *PriorityQueue) effectivePriority(item *HeapItem) int {
	if pq.config.BoostInterval <= 0 {
		return item.Priority
	}

	age := pq.now().Sub(item.SubmittedAt)
	boost := int(age / pq.config.BoostInterval)
	if boost > pq.config.MaxBoost {
		boost = pq.config.MaxBoost
	}
	eff := item.Priority - boost
	if eff < 0 {
		eff = 0
	}
	return eff
}

// less reports whether item i should be dequeued before item j, breaking
// ties by insertion order so FIFO-within-priority holds.
func (pq *PriorityQueue) less(i, j int) bool {
	pi := pq.effectivePriority(&pq.heap[i])
	pj := pq.effectivePriority(&pq.heap[j])
	if pi != pj {
		return pi < pj
	}
	return pq.heap[i].SubmittedAt.Before(pq.heap[j].SubmittedAt)
}

func (pq *PriorityQueue) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if pq.less(idx, parent) {
			pq.heap[idx], pq.heap[parent] = pq.heap[parent], pq.heap[idx]
			idx = parent
		} else {
			break
		}
	}
}

func (pq *PriorityQueue) siftDown(idx int) {
	n := len(pq.heap)
	for {
		smallest := idx
		left := 2*idx + 1
		right := 2*idx + 2

		if left < n && pq.less(left, smallest) {
			smallest = left
		}
		if right < n && pq.less(right, smallest) {
			smallest = right
		}
		if smallest == idx {
			break
		}
		pq.heap[idx], pq.heap[smallest] = pq.heap[smallest], pq.heap[idx]
		idx = smallest
	}
}
