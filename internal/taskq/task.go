// Package taskq is a durable at-least-once task queue over redis, with an
// in-memory implementation for tests and for running without a broker.
// Handlers are expected to be idempotent; delivery can repeat after a crash
// between execution and acknowledgement.
package taskq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

func NewTask(taskType string, payload any) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}, nil
}

func (t *Task) Decode(v any) error {
	return json.Unmarshal(t.Payload, v)
}

// Handler processes one task. A nil return acknowledges the task; an error
// triggers the worker's retry policy.
type Handler func(ctx context.Context, t *Task) error

// Queue is the broker abstraction the worker pool drains.
type Queue interface {
	// Enqueue schedules the task, optionally after a delay.
	Enqueue(ctx context.Context, t *Task, delay time.Duration) error
	// Dequeue blocks up to timeout for the next ready task. A nil task with
	// nil error means the timeout elapsed with nothing to do.
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
}
