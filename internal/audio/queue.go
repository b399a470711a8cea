package audio

import (
	"sync"
)

// Queue is the bounded chunk hand-off between the capture callback and one
// streaming consumer. One queue exists per recording session; the sentinel is
// modeled as closing the underlying channel, delivered exactly once, so every
// blocked consumer eventually unblocks.
type Queue struct {
	ch chan []byte

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	dropMu  sync.Mutex
	dropped int
}

// NewQueue creates a queue holding at most capacity chunks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{ch: make(chan []byte, capacity)}
}

// Push copies chunk into the queue without blocking. It returns false when
// the chunk was dropped, either because the queue is full or already closed.
// Safe to call from the realtime audio callback.
func (q *Queue) Push(chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}

	// The read lock is held across the send attempt so Close cannot close the
	// channel between the closed check and the send.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	copied := append([]byte(nil), chunk...)
	select {
	case q.ch <- copied:
		return true
	default:
		q.dropMu.Lock()
		q.dropped++
		q.dropMu.Unlock()
		return false
	}
}

// Close delivers the end-of-stream sentinel. Idempotent and safe from any
// goroutine.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}

// Chunks exposes the consumer side. Ranging over it terminates once the
// sentinel has been delivered and buffered chunks are drained.
func (q *Queue) Chunks() <-chan []byte {
	return q.ch
}

// Dropped reports how many chunks were discarded because the queue was full.
func (q *Queue) Dropped() int {
	q.dropMu.Lock()
	defer q.dropMu.Unlock()
	return q.dropped
}
