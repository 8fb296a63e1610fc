// Package queue implements the bounded sample queue shared by the
// acquisition task (producer) and the delivery loop (consumer).
//
// The queue is the only contention point between the two tasks. Its mutex
// is held only across the check-and-mutate step of Push and DrainAll,
// never across network or storage I/O, so a slow upload can never stall
// the producer.
package queue

import (
	"sync"

	"github.com/risehi/Pulse32/internal/types"
)

// Queue is a bounded FIFO of readings with a drop-newest overflow policy:
// pushing into a full queue discards the incoming reading, never the
// buffered history.
type Queue struct {
	mu       sync.Mutex
	readings []types.Reading
	capacity int
	dropped  uint64
}

// New creates a queue holding at most capacity readings.
func New(capacity int) *Queue {
	return &Queue{
		readings: make([]types.Reading, 0, capacity),
		capacity: capacity,
	}
}

// Push appends r if the queue has room and returns true. When the queue is
// at capacity the reading is discarded (drop-newest) and Push returns
// false; buffered readings are left untouched.
func (q *Queue) Push(r types.Reading) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.readings) >= q.capacity {
		q.dropped++
		return false
	}
	q.readings = append(q.readings, r)
	return true
}

// DrainAll atomically removes and returns every buffered reading in
// acquisition order, leaving the queue empty.
func (q *Queue) DrainAll() []types.Reading {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.readings) == 0 {
		return nil
	}
	drained := q.readings
	q.readings = make([]types.Reading, 0, q.capacity)
	return drained
}

// Len returns the current number of buffered readings.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.readings)
}

// Dropped returns how many readings were discarded by the drop-newest
// policy since the queue was created.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
