package crawler

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned when pushing onto a queue nobody reads anymore
var ErrQueueClosed = errors.New("task queue closed")

// Task is a page to crawl together with its remaining depth budget
type Task struct {
	URL   string
	Depth int
}

// Queue is an unbounded FIFO shared by all workers. Push never blocks and
// TryPop never waits.
type Queue struct {
	mu     sync.Mutex
	items  []Task
	closed bool
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		items: make([]Task, 0),
	}
}

// Push appends a task. It fails only once the queue has been closed.
func (q *Queue) Push(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, task)
	return nil
}

// TryPop removes and returns the oldest task.
// Returns (task, true) if one was queued, (empty, false) if the queue is
// empty right now.
func (q *Queue) TryPop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Task{}, false
	}

	task := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]
	return task, true
}

// IsEmpty returns true if the queue has no items
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Size returns the current number of items in the queue
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting new tasks. Queued tasks can still be
// popped. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
