package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/taskq"
	"drone-dispatch/internal/user"
	"drone-dispatch/internal/ws"
)

// TaskNotify is the queue task type for asynchronous notification delivery.
const TaskNotify = "notify"

type Service interface {
	// Notify hands the notification to the queue; when the broker is down it
	// delivers inline so the user still gets the row.
	Notify(ctx context.Context, n *Notification) error
	NotifyRoles(ctx context.Context, roles []user.Role, t Type, title, message string) error
	// Deliver persists the row and pushes it to the user's websocket group.
	Deliver(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo  Repository
	db    *sqlx.DB
	users user.Service
	hub   *ws.Hub
	queue taskq.Queue
}

func NewService(repo Repository, db *sqlx.DB, users user.Service, hub *ws.Hub, queue taskq.Queue) Service {
	return &service{repo: repo, db: db, users: users, hub: hub, queue: queue}
}

func (s *service) Notify(ctx context.Context, n *Notification) error {
	if s.queue != nil {
		t, err := taskq.NewTask(TaskNotify, n)
		if err == nil {
			if err := s.queue.Enqueue(ctx, t, 0); err == nil {
				return nil
			}
			slog.Warn("notification queue unavailable, delivering inline", slog.String("user_id", n.UserID.String()))
		}
	}
	return s.Deliver(ctx, n)
}

func (s *service) NotifyRoles(ctx context.Context, roles []user.Role, t Type, title, message string) error {
	users, err := s.users.ListByRoles(ctx, roles...)
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := s.Notify(ctx, New(u.ID, t, title, message)); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Deliver(ctx context.Context, n *Notification) error {
	if err := s.repo.Create(ctx, s.db, n); err != nil {
		return domainerrors.NewTransient("failed to store notification", err)
	}
	if s.hub != nil {
		s.hub.Broadcast(ws.UserGroup(n.UserID.String()), ws.Message{
			Type:      "notification",
			Payload:   n,
			Timestamp: time.Now(),
		})
	}
	return nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error) {
	rows, err := s.repo.ListByUser(ctx, s.db, userID, unreadOnly, limit)
	if err != nil {
		return nil, domainerrors.NewTransient("failed to list notifications", err)
	}
	return rows, nil
}

func (s *service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, s.db, id, userID); err != nil {
		return domainerrors.NewTransient("failed to mark notification read", err)
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.MarkAllRead(ctx, s.db, userID); err != nil {
		return domainerrors.NewTransient("failed to mark notifications read", err)
	}
	return nil
}
