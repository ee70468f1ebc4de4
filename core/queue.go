package core

import (
	"container/heap"
	"sync"
)

// OpQueue runs up to Concurrency work items at a time, dispatching the
// highest-priority queued item first (ties broken by submission order). A
// priority heap stands in for a plain FIFO channel so higher-priority
// fetches and processing jobs jump the line as capacity frees.
type OpQueue struct {
	concurrency int

	mu      sync.Mutex
	items   opHeap
	running int
	seq     uint64

	wake chan struct{}
}

// NewOpQueue starts a queue that runs at most concurrency items at once.
func NewOpQueue(concurrency int) *OpQueue {
	if concurrency <= 0 {
		concurrency = 1
	}
	q := &OpQueue{
		concurrency: concurrency,
		wake:        make(chan struct{}, 1),
	}
	go q.dispatchLoop()
	return q
}

// Op is a handle to a submitted work item.
type Op struct {
	priority Priority
	seq      uint64
	index    int // heap index; -1 once popped
	run      func(op *Op, finish func())

	q          *OpQueue
	cancelled  bool
	started    bool
	finishOnce sync.Once
}

// Submit enqueues run at the given priority. run receives a finish
// callback it must call exactly once when the work completes, releasing
// the queue's concurrency slot. Cancelling an Op that has not started
// prevents it from ever starting; an Op that has started must observe
// cancellation cooperatively (typically via a CancelToken closed over by
// run).
func (q *OpQueue) Submit(priority Priority, run func(op *Op, finish func())) *Op {
	q.mu.Lock()
	q.seq++
	op := &Op{priority: priority, seq: q.seq, run: run, q: q, index: -1}
	heap.Push(&q.items, op)
	q.mu.Unlock()
	q.signal()
	return op
}

// SetPriority updates a not-yet-started Op's dispatch priority.
func (op *Op) SetPriority(p Priority) {
	q := op.q
	q.mu.Lock()
	op.priority = p
	if op.index >= 0 {
		heap.Fix(&q.items, op.index)
	}
	q.mu.Unlock()
}

// Cancel marks the Op so the dispatcher skips it if it has not yet started.
// Has no effect on an already-running Op beyond that; callers must also
// cancel the CancelToken the running work observes.
func (op *Op) Cancel() {
	op.q.mu.Lock()
	op.cancelled = true
	op.q.mu.Unlock()
}

func (q *OpQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *OpQueue) dispatchLoop() {
	for range q.wake {
		q.dispatch()
	}
}

func (q *OpQueue) dispatch() {
	for {
		q.mu.Lock()
		if q.running >= q.concurrency || q.items.Len() == 0 {
			q.mu.Unlock()
			return
		}
		op := heap.Pop(&q.items).(*Op)
		op.index = -1
		if op.cancelled {
			q.mu.Unlock()
			continue
		}
		op.started = true
		q.running++
		q.mu.Unlock()

		run := op.run
		go run(op, func() { op.finish() })
	}
}

func (op *Op) finish() {
	op.finishOnce.Do(func() {
		q := op.q
		q.mu.Lock()
		q.running--
		q.mu.Unlock()
		q.signal()
	})
}

// opHeap orders by (priority desc, seq asc) so higher priority items and,
// among equals, earlier submissions dispatch first.
type opHeap []*Op

func (h opHeap) Len() int { return len(h) }

func (h opHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h opHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *opHeap) Push(x any) {
	op := x.(*Op)
	op.index = len(*h)
	*h = append(*h, op)
}

func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	op := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return op
}
