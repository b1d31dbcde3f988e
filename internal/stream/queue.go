package stream

import (
	"sync"
	"time"

	"github.com/roach88/deduce/internal/ir"
)

// Batch is a group of facts submitted together. All facts of a batch share
// one expiry.
type Batch struct {
	// ID identifies the batch in logs. Assigned by Enqueue.
	ID string

	// Seq orders batches by arrival. Assigned by the Run loop.
	Seq int64

	// Facts are the tuples to add, by predicate.
	Facts map[ir.Predicate][]ir.Tuple

	// Expires is when the batch's facts leave the model. Zero means never.
	// Assigned by the Run loop when the batch is applied.
	Expires time.Time
}

// Size returns the number of tuples in the batch.
func (b Batch) Size() int {
	n := 0
	for _, ts := range b.Facts {
		n += len(ts)
	}
	return n
}

// batchQueue is a thread-safe FIFO queue of batches.
//
// Producers enqueue from any goroutine; the Run loop is the only consumer.
// The queue is unbounded. The signal channel lets the consumer wait with a
// select alongside its context and ticker.
type batchQueue struct {
	mu      sync.Mutex
	batches []Batch
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newBatchQueue() *batchQueue {
	return &batchQueue{
		batches: make([]Batch, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a batch to the back of the queue. Returns false if the queue
// is closed.
func (q *batchQueue) Enqueue(b Batch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.batches = append(q.batches, b)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front batch without blocking.
func (q *batchQueue) TryDequeue() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.batches) == 0 {
		return Batch{}, false
	}
	b := q.batches[0]

	// CRITICAL: clear the slot so the backing array does not keep the
	// batch's facts alive.
	q.batches[0] = Batch{}
	if len(q.batches) == 1 {
		q.batches = q.batches[:0]
	} else {
		q.batches = q.batches[1:]
	}
	return b, true
}

// Wait returns a channel that signals when batches may be available. It is
// closed by Close.
func (q *batchQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued batches.
func (q *batchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// Closed reports whether Close was called.
func (q *batchQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes the consumer.
func (q *batchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
