package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	domainerrors "drone-dispatch/internal/errors"
)

func TestOrderLocks_Exclusive(t *testing.T) {
	l := newOrderLocks()
	id := uuid.New()

	release, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := l.Acquire(context.Background(), id)
		if err != nil {
			t.Errorf("second acquire failed: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never got the lock after release")
	}
}

func TestOrderLocks_IndependentOrders(t *testing.T) {
	l := newOrderLocks()

	r1, err := l.Acquire(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer r1()

	done := make(chan struct{})
	go func() {
		r2, err := l.Acquire(context.Background(), uuid.New())
		if err != nil {
			t.Errorf("acquire on a different order failed: %v", err)
		} else {
			r2()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different orders must not contend")
	}
}

func TestOrderLocks_CancelledContext(t *testing.T) {
	l := newOrderLocks()
	id := uuid.New()

	release, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, id); err == nil {
		t.Fatal("acquire with a cancelled context must fail")
	} else {
		var de *domainerrors.DomainError
		if !errors.As(err, &de) || de.Code != domainerrors.ErrTransient {
			t.Fatalf("lock failure must be retriable, got %v", err)
		}
	}
}

func TestOrderLocks_EntryCleanup(t *testing.T) {
	l := newOrderLocks()
	id := uuid.New()

	release, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()

	l.mu.Lock()
	n := len(l.entries)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("released locks must be dropped from the table, %d left", n)
	}
}
