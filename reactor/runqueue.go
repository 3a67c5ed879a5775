package reactor

import "github.com/eapache/queue"

// readyQueue is a FIFO of zero-delay callbacks — fibers that a
// [Reactor.RunCallback] call has made runnable this tick or the next.
// Kept separate from the deadline-ordered [timerQueue] so that scheduling
// "run as soon as possible" work never has to fight a heap for ordering:
// eapache/queue is an unordered ring buffer, exactly the structure a
// pure FIFO needs and a priority queue is not.
type readyQueue struct {
	q *queue.Queue
}

func newReadyQueue() *readyQueue {
	return &readyQueue{q: queue.New()}
}

func (r *readyQueue) push(callback func()) {
	r.q.Add(callback)
}

func (r *readyQueue) empty() bool {
	return r.q.Length() == 0
}

// runAll drains every callback currently queued, including ones pushed by
// callbacks run during this same drain (so a chain of re-entrant
// RunCallback calls still completes within one Reactor tick).
func (r *readyQueue) runAll() {
	for r.q.Length() > 0 {
		callback := r.q.Remove().(func())
		callback()
	}
}
