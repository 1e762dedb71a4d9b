package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domainerrors "drone-dispatch/internal/errors"
)

const lockTimeout = 5 * time.Second

// orderLocks serializes pipeline work per order. Acquisition times out so a
// wedged worker cannot stall the whole queue; the caller gets a retriable
// error and the task comes back later.
type orderLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Acquire blocks until the order lock is free, the timeout fires, or ctx is
// cancelled. On success the returned func releases the lock.
func (l *orderLocks) Acquire(ctx context.Context, orderID uuid.UUID) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[orderID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[orderID] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(lockTimeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			l.release(orderID, e)
		}, nil
	case <-timer.C:
		l.release(orderID, e)
		return nil, domainerrors.NewTransient("timed out waiting for order lock", nil)
	case <-ctx.Done():
		l.release(orderID, e)
		return nil, domainerrors.NewTransient("cancelled waiting for order lock", ctx.Err())
	}
}

func (l *orderLocks) release(orderID uuid.UUID, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, orderID)
	}
	l.mu.Unlock()
}
