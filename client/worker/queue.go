package worker

import (
	"sync"
)

type queuedJob struct {
	id  string
	job TransferJob
}

// JobQueue is an unbounded FIFO shared by the submitter and the workers
type JobQueue struct {
	sync.Mutex
	cond   *sync.Cond
	queue  []*queuedJob
	closed bool
}

func newJobQueue() *JobQueue {
	q := &JobQueue{}
	q.cond = sync.NewCond(&q.Mutex)
	return q
}

// Push appends x and wakes one waiting worker. It never blocks on capacity and
// reports false once the queue is closed.
func (q *JobQueue) Push(x *queuedJob) bool {
	q.Lock()
	defer q.Unlock()
	if q.closed {
		return false
	}

	q.queue = append(q.queue, x)
	q.cond.Signal()
	return true
}

// PopFront waits for a job. It returns nil once the queue is closed and drained.
func (q *JobQueue) PopFront() *queuedJob {
	q.Lock()
	defer q.Unlock()
	for len(q.queue) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.queue) == 0 {
		return nil
	}

	item := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	return item
}

// Close stops accepting jobs and wakes every waiting worker. Jobs already queued
// are still handed out.
func (q *JobQueue) Close() {
	q.Lock()
	defer q.Unlock()

	q.closed = true
	q.cond.Broadcast()
}
