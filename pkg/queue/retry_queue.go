package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
)

// RetryItem is a profile endpoint whose fetch was cut short by a browsing-context teardown
type RetryItem struct {
	Endpoint models.ProfileEndpoint
	Position int    // Index in the run's endpoint list; replay follows this order
	Reason   string // Error category that caused the requeue
}

type heapEntry struct {
	item  RetryItem
	index int
}

// retryHeap orders entries by original position
type retryHeap []*heapEntry

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].item.Position < h[j].item.Position }

func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x any) {
	entry := x.(*heapEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// RetryQueue is a bounded, concurrency-safe set of items awaiting one serial replay.
// It is owned by a single processor run; concurrent windows add to it.
type RetryQueue struct {
	mu       sync.Mutex
	h        retryHeap
	seen     map[string]struct{} // batch + "\x00" + url
	capacity int
	dropped  int
	log      *logrus.Entry
}

// NewRetryQueue creates a queue holding at most capacity items; capacity < 1 means unbounded
func NewRetryQueue(capacity int, log *logrus.Entry) *RetryQueue {
	q := &RetryQueue{
		seen:     make(map[string]struct{}),
		capacity: capacity,
		log:      log,
	}
	heap.Init(&q.h)
	return q
}

func itemKey(ep models.ProfileEndpoint) string {
	return ep.Batch + "\x00" + ep.URL
}

// Add enqueues item unless it is already queued or the queue is full.
// Returns false when the item was not added.
func (q *RetryQueue) Add(item RetryItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := itemKey(item.Endpoint)
	if _, dup := q.seen[key]; dup {
		return false
	}
	if q.capacity > 0 && len(q.h) >= q.capacity {
		q.dropped++
		q.log.WithFields(logrus.Fields{"url": item.Endpoint.URL, "capacity": q.capacity}).Warn("Retry queue full, dropping item")
		return false
	}
	q.seen[key] = struct{}{}
	heap.Push(&q.h, &heapEntry{item: item})
	return true
}

// Drain removes and returns every queued item in original position order, leaving the queue empty
func (q *RetryQueue) Drain() []RetryItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]RetryItem, 0, len(q.h))
	for len(q.h) > 0 {
		items = append(items, heap.Pop(&q.h).(*heapEntry).item)
	}
	q.seen = make(map[string]struct{})
	return items
}

// Len returns the number of queued items
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Dropped returns how many items were rejected because the queue was full
func (q *RetryQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
