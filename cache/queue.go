package cache

import "sync"

type workKind int

const (
	workLoad workKind = iota
	workFlush
	workSync
)

func (k workKind) String() string {
	switch k {
	case workLoad:
		return "load"
	case workFlush:
		return "flush"
	case workSync:
		return "sync"
	default:
		return "unknown"
	}
}

type workItem struct {
	kind workKind

	// done, when set, receives the outcome of the item.
	done chan error
}

// workQueue is an unbounded FIFO. signal holds at most one pending wake-up.
type workQueue struct {
	mu     sync.Mutex
	items  []workItem
	signal chan struct{}
}

func newWorkQueue() *workQueue {
	return &workQueue{signal: make(chan struct{}, 1)}
}

func (q *workQueue) push(item workItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.wake()
}

// pushCoalesced appends item unless an item of the same kind without a waiter is already pending.
func (q *workQueue) pushCoalesced(item workItem) {
	q.mu.Lock()
	for _, pending := range q.items {
		if pending.kind == item.kind && pending.done == nil {
			q.mu.Unlock()
			return
		}
	}

	q.items = append(q.items, item)
	q.mu.Unlock()

	q.wake()
}

func (q *workQueue) pop() (workItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return workItem{}, false
	}

	item := q.items[0]
	q.items[0] = workItem{}
	q.items = q.items[1:]

	return item, true
}

func (q *workQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// drain removes all pending items and fails their waiters with err.
func (q *workQueue) drain(err error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, item := range items {
		if item.done != nil {
			item.done <- err
		}
	}
}

func (q *workQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
