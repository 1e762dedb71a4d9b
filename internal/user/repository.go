package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, email, name, password_hash, role, is_active, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, u *User) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, ext sqlx.ExtContext, email string) (*User, error)
	Update(ctx context.Context, ext sqlx.ExtContext, u *User) error
	ListByRoles(ctx context.Context, ext sqlx.ExtContext, roles ...Role) ([]*User, error)
}

type userRepository struct{}

func NewRepository() Repository {
	return &userRepository{}
}

func (r *userRepository) Create(ctx context.Context, ext sqlx.ExtContext, u *User) error {
	const query = `INSERT INTO users (id, email, name, password_hash, role, is_active, created_at, updated_at)
		VALUES (:id, :email, :name, :password_hash, :role, :is_active, :created_at, :updated_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, u)
	return err
}

func (r *userRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*User, error) {
	var u User
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &u, query, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, ext sqlx.ExtContext, email string) (*User, error) {
	var u User
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &u, query, email); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, ext sqlx.ExtContext, u *User) error {
	const query = `UPDATE users SET email = :email, name = :name, password_hash = :password_hash,
		role = :role, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, ext, query, u)
	return err
}

func (r *userRepository) ListByRoles(ctx context.Context, ext sqlx.ExtContext, roles ...Role) ([]*User, error) {
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM users WHERE role IN (?) AND is_active`, columns), roles)
	if err != nil {
		return nil, err
	}
	query = ext.Rebind(query)

	var users []*User
	if err := sqlx.SelectContext(ctx, ext, &users, query, args...); err != nil {
		return nil, err
	}
	return users, nil
}
