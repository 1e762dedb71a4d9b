package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainerrors "drone-dispatch/internal/errors"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type Claims struct {
	Sub       string `json:"sub"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type Service struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewService(secret string, accessExpiry, refreshExpiry time.Duration) *Service {
	return &Service{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

func (s *Service) generate(sub, role, tokenType string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:       sub,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// GeneratePair issues an access/refresh token pair for the user.
func (s *Service) GeneratePair(sub, role string) (*Pair, error) {
	access, err := s.generate(sub, role, TypeAccess, s.accessExpiry)
	if err != nil {
		return nil, err
	}
	refresh, err := s.generate(sub, role, TypeRefresh, s.refreshExpiry)
	if err != nil {
		return nil, err
	}
	return &Pair{Access: access, Refresh: refresh}, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domainerrors.NewUnauthorized("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, domainerrors.NewUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domainerrors.NewUnauthorized("invalid token claims")
	}

	return claims, nil
}

// ValidateAccess accepts only access tokens, so a leaked refresh token cannot
// be replayed against the API.
func (s *Service) ValidateAccess(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	// Tokens minted before the pair split carry no type; treat them as access.
	if claims.TokenType != "" && claims.TokenType != TypeAccess {
		return nil, domainerrors.NewUnauthorized("refresh token not accepted here")
	}
	return claims, nil
}

// ValidateRefresh accepts only refresh tokens.
func (s *Service) ValidateRefresh(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, domainerrors.NewUnauthorized("refresh token required")
	}
	return claims, nil
}
