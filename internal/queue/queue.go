// Package queue implements the FIFO queueing-thread engine the dispatcher
// drives: a mutex+condition-variable queue serviced by a single base
// routine running on its own goroutine, plus a small worker pool that
// callers (the dispatcher's send path) can submit work to.
// Grounded on original_source/src/queue/caqueueingthread.c and, for the
// Go-idiomatic worker-submission shape, on the teacher's
// internal/service/batcher.go accumulator/writer loops.
package queue

import (
	"sync"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
)

// TaskFunc processes one dequeued item. It is invoked on the queue's own
// goroutine (the "base routine"), matching the source's threadTask contract.
type TaskFunc func(item interface{})

// Queue is a FIFO of arbitrary items drained by a single goroutine, with a
// two-phase stop rendezvous: Stop() blocks until the draining goroutine has
// acknowledged the stop request, matching CAQueueingThreadStop's
// lock/signal/wait-for-ack sequence.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []interface{}
	task     TaskFunc
	running  bool
	stopping bool
	stopAck  chan struct{}
}

// New constructs a Queue bound to task. The queue starts stopped; call
// Start to begin draining. Mirrors CAQueueingThreadInitialize, which
// allocates the queue/mutex/cond but leaves isStop true until Start.
func New(task TaskFunc) *Queue {
	q := &Queue{task: task}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the draining goroutine if it is not already running.
// Matches CAQueueingThreadStart's no-op-if-already-running behavior.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopping = false
	q.stopAck = make(chan struct{})
	go q.loop()
}

// Push enqueues item and wakes the draining goroutine. Matches
// CAQueueingThreadAddData's lock/append/signal/unlock sequence. Returns
// domain.ErrQueueStopped if the queue is not running.
func (q *Queue) Push(item interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running || q.stopping {
		return domain.ErrQueueStopped
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return nil
}

// loop is the base routine: wait while running and empty, drain one item at
// a time, and on stop drain whatever remains before acknowledging.
func (q *Queue) loop() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.stopping {
			q.cond.Wait()
		}
		if q.stopping && len(q.items) == 0 {
			q.running = false
			ack := q.stopAck
			q.mu.Unlock()
			close(ack)
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.task(item)
	}
}

// Stop requests the draining goroutine to finish remaining items and exit,
// then blocks until it has done so. Matches CAQueueingThreadStop's
// lock/set-isStop/signal/wait-for-ack/unlock sequence. Stop is a no-op if
// the queue is already stopped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running || q.stopping {
		q.mu.Unlock()
		return
	}
	q.stopping = true
	ack := q.stopAck
	q.cond.Broadcast()
	q.mu.Unlock()

	<-ack
}

// Destroy drains any remaining items through destroy without processing
// them via task, matching CAQueueingThreadDestroy's precondition that the
// queue is already stopped. Safe to call on a queue that was never started.
func (q *Queue) Destroy(destroy func(item interface{})) {
	q.mu.Lock()
	remaining := q.items
	q.items = nil
	q.mu.Unlock()

	if destroy == nil {
		return
	}
	for _, item := range remaining {
		destroy(item)
	}
}

// Len reports the current number of queued, undrained items. Exposed for
// internal/metrics's queue-depth gauge.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
