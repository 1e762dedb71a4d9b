package taskq

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a broker-free Queue for tests and single-process runs. It
// loses queued tasks on restart; durability comes from the redis queue.
type MemoryQueue struct {
	mu     sync.Mutex
	ready  chan *Task
	timers []*time.Timer
	closed bool
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryQueue{ready: make(chan *Task, buffer)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, t *Task, delay time.Duration) error {
	if delay <= 0 {
		q.push(t)
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.timers = append(q.timers, time.AfterFunc(delay, func() { q.push(t) }))
	return nil
}

func (q *MemoryQueue) push(t *Task) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	select {
	case q.ready <- t:
	default:
		// Full buffer: drop rather than block the producer. At-least-once
		// delivery is only promised by the redis queue.
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t := <-q.ready:
		return t, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops pending delay timers.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, t := range q.timers {
		t.Stop()
	}
	q.timers = nil
}
