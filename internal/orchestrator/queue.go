package orchestrator

import (
	"context"
	"sync"
)

// Queue is the FIFO of pending task-ids plus the parallel visible ordering
// used for O(index-of) position queries. Waiting for a new entry to
// arrive uses the "close a channel, replace it" broadcast idiom: every
// Enqueue closes the current wake channel (waking every blocked Dequeue)
// and installs a fresh one.
type Queue struct {
	mu     sync.Mutex
	order  []string
	wakeCh chan struct{}
}

// NewQueue builds an empty Queue.
func NewQueue() *Queue {
	return &Queue{wakeCh: make(chan struct{})}
}

// Enqueue appends id to the back of the queue. A task-id appears in the
// queue iff it is PENDING; callers are responsible for having already put
// the Task into the Registry in PENDING state.
func (q *Queue) Enqueue(id string) {
	q.mu.Lock()
	q.order = append(q.order, id)
	close(q.wakeCh)
	q.wakeCh = make(chan struct{})
	q.mu.Unlock()
}

// Dequeue blocks until an id is available or ctx is cancelled. The id is
// removed from the visible ordering in the same step it is returned, so
// position queries never count an in-flight task.
func (q *Queue) Dequeue(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			id := q.order[0]
			q.order = q.order[1:]
			q.mu.Unlock()
			return id, true
		}
		wake := q.wakeCh
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return "", false
		}
	}
}

// Position returns the 1-based index of id in dequeue order, or false if
// id is not currently queued (it may be STARTED, completed, or unknown).
func (q *Queue) Position(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, queued := range q.order {
		if queued == id {
			return i + 1, true
		}
	}
	return 0, false
}

// Size returns the number of ids currently queued.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
