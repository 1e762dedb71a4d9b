package taskq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domainerrors "drone-dispatch/internal/errors"
)

const dequeueTimeout = 2 * time.Second

// FailureHook runs when a task has exhausted its retries (or failed with a
// final, non-retriable error).
type FailureHook func(ctx context.Context, t *Task, err error)

// Worker drains the queue with a pool of goroutines. Failed tasks are
// re-enqueued with a fixed delay while the error is retriable and attempts
// remain; anything else goes to the failure hook.
type Worker struct {
	queue       Queue
	concurrency int
	maxRetries  int
	retryDelay  time.Duration

	mu        sync.RWMutex
	handlers  map[string]Handler
	onFailure FailureHook
}

func NewWorker(queue Queue, concurrency, maxRetries int, retryDelay time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Worker{
		queue:       queue,
		concurrency: concurrency,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		handlers:    make(map[string]Handler),
	}
}

func (w *Worker) Register(taskType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = h
}

func (w *Worker) OnFailure(hook FailureHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFailure = hook
}

// Run blocks until ctx is cancelled, then drains in-flight tasks and returns.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				t, err := w.queue.Dequeue(ctx, dequeueTimeout)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					slog.Error("dequeue failed", slog.String("error", err.Error()))
					time.Sleep(time.Second)
					continue
				}
				if t == nil {
					continue
				}
				w.process(ctx, t)
			}
		})
	}
	return g.Wait()
}

func (w *Worker) process(ctx context.Context, t *Task) {
	w.mu.RLock()
	handler, ok := w.handlers[t.Type]
	hook := w.onFailure
	w.mu.RUnlock()

	if !ok {
		slog.Error("no handler for task type", slog.String("type", t.Type), slog.String("task_id", t.ID))
		return
	}

	err := handler(ctx, t)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// Shutdown raced the task; leave requeueing to the caller's
		// at-least-once semantics rather than double-booking it here.
		return
	}

	if domainerrors.IsRetriable(err) && t.Attempt < w.maxRetries {
		t.Attempt++
		slog.Warn("task failed, retrying",
			slog.String("type", t.Type),
			slog.String("task_id", t.ID),
			slog.Int("attempt", t.Attempt),
			slog.String("error", err.Error()),
		)
		if qErr := w.queue.Enqueue(ctx, t, w.retryDelay); qErr != nil {
			slog.Error("failed to requeue task", slog.String("task_id", t.ID), slog.String("error", qErr.Error()))
			if hook != nil {
				hook(ctx, t, err)
			}
		}
		return
	}

	slog.Error("task failed permanently",
		slog.String("type", t.Type),
		slog.String("task_id", t.ID),
		slog.Int("attempt", t.Attempt),
		slog.String("error", err.Error()),
	)
	if hook != nil {
		hook(ctx, t, err)
	}
}
