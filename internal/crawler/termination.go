package crawler

import "sync"

// PollState is the outcome of a worker asking for work
type PollState int

const (
	// PollTask means a task was handed out and every idle flag was cleared.
	PollTask PollState = iota
	// PollIdle means the queue was empty but some worker may still produce work.
	PollIdle
	// PollQuiescent means every worker is idle and the queue is empty.
	PollQuiescent
)

func (s PollState) String() string {
	switch s {
	case PollTask:
		return "task"
	case PollIdle:
		return "idle"
	case PollQuiescent:
		return "quiescent"
	default:
		return "unknown"
	}
}

// Coordinator detects when the worker pool has run out of work. Each worker
// owns one idle flag; there is no in-flight counter.
//
// A worker that pops a task clears every flag. A worker that finds the queue
// empty sets its own flag, and if all flags are then set the pool is done.
// Popping and flag updates happen under one lock, so a worker holding a task
// always has its flag cleared and no sibling can declare quiescence while
// that task may still produce follow-on tasks.
type Coordinator struct {
	mu    sync.Mutex
	queue *Queue
	idle  []bool
}

// NewCoordinator creates a coordinator for the given number of workers.
// All flags start cleared.
func NewCoordinator(queue *Queue, workers int) *Coordinator {
	return &Coordinator{
		queue: queue,
		idle:  make([]bool, workers),
	}
}

// Poll hands worker the next task if there is one. Otherwise it marks worker
// idle. It also returns the number of idle workers after the update.
func (c *Coordinator) Poll(worker int) (Task, PollState, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if task, ok := c.queue.TryPop(); ok {
		for i := range c.idle {
			c.idle[i] = false
		}
		return task, PollTask, 0
	}

	c.idle[worker] = true

	idle := 0
	for _, flag := range c.idle {
		if flag {
			idle++
		}
	}

	if idle == len(c.idle) {
		return Task{}, PollQuiescent, idle
	}
	return Task{}, PollIdle, idle
}

// Workers returns the number of idle flags
func (c *Coordinator) Workers() int {
	return len(c.idle)
}

// Flags returns a copy of the idle flags
func (c *Coordinator) Flags() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	flags := make([]bool, len(c.idle))
	copy(flags, c.idle)
	return flags
}
