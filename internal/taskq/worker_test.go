package taskq

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainerrors "drone-dispatch/internal/errors"
)

func runWorker(t *testing.T, w *Worker) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	q := NewMemoryQueue(16)
	defer q.Close()
	w := NewWorker(q, 2, 3, 10*time.Millisecond)

	var attempts atomic.Int32
	done := make(chan struct{})
	w.Register("flaky", func(ctx context.Context, task *Task) error {
		// Fails three times, succeeds on the fourth attempt.
		if attempts.Add(1) <= 3 {
			return domainerrors.NewTransient("db unavailable", nil)
		}
		close(done)
		return nil
	})

	var failed atomic.Int32
	w.OnFailure(func(ctx context.Context, task *Task, err error) { failed.Add(1) })

	stop := runWorker(t, w)
	defer stop()

	task, err := NewTask("flaky", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := q.Enqueue(context.Background(), task, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("task never succeeded; attempts=%d", attempts.Load())
	}
	if attempts.Load() != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts.Load())
	}
	if failed.Load() != 0 {
		t.Fatal("failure hook must not fire for an eventual success")
	}
}

func TestWorker_ExhaustedRetriesHitFailureHook(t *testing.T) {
	q := NewMemoryQueue(16)
	defer q.Close()
	w := NewWorker(q, 1, 3, 5*time.Millisecond)

	var attempts atomic.Int32
	w.Register("doomed", func(ctx context.Context, task *Task) error {
		attempts.Add(1)
		return domainerrors.NewTransient("still down", nil)
	})

	failed := make(chan error, 1)
	w.OnFailure(func(ctx context.Context, task *Task, err error) {
		select {
		case failed <- err:
		default:
		}
	})

	stop := runWorker(t, w)
	defer stop()

	task, _ := NewTask("doomed", nil)
	_ = q.Enqueue(context.Background(), task, 0)

	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("failure hook never fired")
	}
	// Initial attempt plus three retries.
	if attempts.Load() != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts.Load())
	}
}

func TestWorker_NonRetriableFailsImmediately(t *testing.T) {
	q := NewMemoryQueue(16)
	defer q.Close()
	w := NewWorker(q, 1, 3, 5*time.Millisecond)

	var attempts atomic.Int32
	w.Register("invalid", func(ctx context.Context, task *Task) error {
		attempts.Add(1)
		return domainerrors.NewValidation("bad payload")
	})

	failed := make(chan struct{}, 1)
	w.OnFailure(func(ctx context.Context, task *Task, err error) {
		select {
		case failed <- struct{}{}:
		default:
		}
	})

	stop := runWorker(t, w)
	defer stop()

	task, _ := NewTask("invalid", nil)
	_ = q.Enqueue(context.Background(), task, 0)

	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("failure hook never fired")
	}
	if attempts.Load() != 1 {
		t.Fatalf("validation errors must not retry; got %d attempts", attempts.Load())
	}
}

func TestMemoryQueue_DelayedDelivery(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()

	task, _ := NewTask("later", nil)
	start := time.Now()
	if err := q.Enqueue(context.Background(), task, 50*time.Millisecond); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := q.Dequeue(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got == nil {
		t.Fatal("expected the delayed task")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("task delivered after %s, before its delay", elapsed)
	}
}

func TestWorker_ConcurrentTasksAllProcessed(t *testing.T) {
	q := NewMemoryQueue(64)
	defer q.Close()
	w := NewWorker(q, 4, 0, 0)

	const n = 20
	var mu sync.Mutex
	seen := make(map[string]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	w.Register("count", func(ctx context.Context, task *Task) error {
		mu.Lock()
		if !seen[task.ID] {
			seen[task.ID] = true
			wg.Done()
		}
		mu.Unlock()
		return nil
	})

	stop := runWorker(t, w)
	defer stop()

	for i := 0; i < n; i++ {
		task, _ := NewTask("count", i)
		_ = q.Enqueue(context.Background(), task, 0)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("only %d of %d tasks processed", len(seen), n)
	}
}
