package harvest

import "sync"

// Queue implements a thread-safe FIFO of pending domains with deduplication
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	seen    map[string]bool
	stopped bool
}

// NewQueue creates a new dispatch queue
func NewQueue() *Queue {
	q := &Queue{
		items: make([]string, 0),
		seen:  make(map[string]bool),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push adds a domain to the queue if it hasn't been enqueued before.
// Returns true if added, false if duplicate or the queue is stopped.
func (q *Queue) Push(domain string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return false
	}
	if q.seen[domain] {
		return false
	}

	q.seen[domain] = true
	q.items = append(q.items, domain)

	// Signal waiting workers
	q.cond.Signal()

	return true
}

// Pop removes and returns the next domain in FIFO order. Blocks while the
// queue is empty and not stopped; returns ("", false) once stopped and
// drained.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if len(q.items) > 0 {
			domain := q.items[0]
			q.items = q.items[1:]
			return domain, true
		}

		if q.stopped {
			return "", false
		}

		q.cond.Wait()
	}
}

// Size returns the current number of pending domains
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stop signals the queue to stop accepting new domains. Workers blocked on
// Pop() drain the remaining items, then receive false.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.cond.Broadcast()
}
