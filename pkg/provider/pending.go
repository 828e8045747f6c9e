package provider

import "sync"

// DefaultPendingLimit bounds how many pre-ready frames a session may hold.
const DefaultPendingLimit = 256

// PendingQueue holds device audio frames that arrive before the adapter's
// readiness transition. The queue is drained exactly once, in arrival order,
// the instant readiness is observed; afterwards it is permanently disabled
// and never re-enters buffering mode.
type PendingQueue struct {
	mu      sync.Mutex
	frames  [][]byte
	limit   int
	drained bool
}

// NewPendingQueue creates a queue holding at most limit frames.
// A non-positive limit uses DefaultPendingLimit.
func NewPendingQueue(limit int) *PendingQueue {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return &PendingQueue{limit: limit}
}

// Enqueue appends a frame. Returns false once the queue has been drained
// (the caller should forward directly) or when the queue is full (the frame
// is dropped).
func (q *PendingQueue) Enqueue(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.drained || len(q.frames) >= q.limit {
		return false
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	q.frames = append(q.frames, buf)
	return true
}

// DrainOnce returns all buffered frames in arrival order and disables the
// queue. Subsequent calls return nil.
func (q *PendingQueue) DrainOnce() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.drained {
		return nil
	}
	q.drained = true
	frames := q.frames
	q.frames = nil
	return frames
}

// Drained reports whether the one-time drain has happened.
func (q *PendingQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drained
}

// Len returns the number of buffered frames.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
