package auth

import (
	"context"

	"drone-dispatch/internal/jwt"
	"drone-dispatch/internal/user"
)

type Service interface {
	Login(ctx context.Context, email, password string) (*jwt.Pair, *user.User, error)
	Refresh(ctx context.Context, refreshToken string) (*jwt.Pair, error)
}

type authService struct {
	users user.Service
	jwt   *jwt.Service
}

func NewAuthService(users user.Service, jwtService *jwt.Service) Service {
	return &authService{users: users, jwt: jwtService}
}

func (s *authService) Login(ctx context.Context, email, password string) (*jwt.Pair, *user.User, error) {
	u, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.jwt.GeneratePair(u.ID.String(), string(u.Role))
	if err != nil {
		return nil, nil, err
	}
	return pair, u, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*jwt.Pair, error) {
	claims, err := s.jwt.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	return s.jwt.GeneratePair(claims.Sub, claims.Role)
}
