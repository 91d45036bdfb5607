package watch

import "sync"

// changeQueue is a FIFO of changed-file batches. The poller enqueues while
// the run loop drains; Drain merges everything pending into one rebuild.
//
// The signal channel has a buffer of one, so many enqueues between two
// drains wake the loop once.
type changeQueue struct {
	mu      sync.Mutex
	batches [][]string
	closed  bool
	signal  chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{signal: make(chan struct{}, 1)}
}

// Enqueue adds a batch. It returns false once the queue is closed.
func (q *changeQueue) Enqueue(paths []string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(paths) == 0 {
		return true
	}
	q.batches = append(q.batches, paths)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain removes every pending batch and returns their paths, deduplicated
// in first-seen order.
func (q *changeQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.batches) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, b := range q.batches {
		for _, p := range b {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	q.batches = nil
	return out
}

// Wait returns a channel that fires when batches may be pending, and is
// closed by Close.
func (q *changeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending batches.
func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// Close stops further enqueues and wakes waiters.
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
