package user

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "drone-dispatch/internal/errors"
)

type Service interface {
	Register(ctx context.Context, email, name, password string, role Role) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListByRoles(ctx context.Context, roles ...Role) ([]*User, error)
}

type service struct {
	repo Repository
	db   *sqlx.DB
}

func NewService(repo Repository, db *sqlx.DB) Service {
	return &service{repo: repo, db: db}
}

func (s *service) Register(ctx context.Context, email, name, password string, role Role) (*User, error) {
	if email == "" || password == "" {
		return nil, domainerrors.NewValidation("email and password are required")
	}
	if len(password) < 8 {
		return nil, domainerrors.NewValidation("password must be at least 8 characters")
	}
	if existing, err := s.repo.GetByEmail(ctx, s.db, email); err == nil && existing != nil {
		return nil, domainerrors.NewConflict("email already registered")
	}

	u, err := New(email, name, password, role)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, s.db, u); err != nil {
		return nil, domainerrors.NewTransient("failed to create user", err)
	}
	return u, nil
}

func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, s.db, email)
	if err != nil {
		return nil, domainerrors.NewUnauthorized("invalid credentials")
	}
	if !u.IsActive || !u.CheckPassword(password) {
		return nil, domainerrors.NewUnauthorized("invalid credentials")
	}
	return u, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, domainerrors.NewNotFound("user", id.String())
	}
	return u, nil
}

func (s *service) ListByRoles(ctx context.Context, roles ...Role) ([]*User, error) {
	users, err := s.repo.ListByRoles(ctx, s.db, roles...)
	if err != nil {
		return nil, domainerrors.NewTransient("failed to list users", err)
	}
	return users, nil
}
