package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/identity"
)

// Users is the identity surface needed to validate and revoke tokens.
type Users interface {
	Get(ctx context.Context, userID string) (identity.User, error)
	RevokeSessions(ctx context.Context, userID string) (int, error)
}

// Claims carries the user id in the subject and the token version the user had at issue time.
type Claims struct {
	jwt.RegisteredClaims
	Version int `json:"ver"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type Service struct {
	secret []byte
	ttl    time.Duration
	users  Users
	now    func() time.Time
}

func NewService(secret string, ttl time.Duration, users Users) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, users: users, now: time.Now}
}

// Issue signs an access token for user.
func (s *Service) Issue(user identity.User) (Token, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Version: user.TokenVersion,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify validates the signature, expiry and token version and returns the user id.
func (s *Service) Verify(ctx context.Context, tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", apperr.ErrAuth)
	}

	user, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", fmt.Errorf("unknown subject: %w", apperr.ErrAuth)
		}
		return "", err
	}
	if user.TokenVersion != claims.Version {
		return "", fmt.Errorf("token revoked: %w", apperr.ErrAuth)
	}
	return user.ID, nil
}

// Revoke increments the user's token version so older tokens stop verifying.
func (s *Service) Revoke(ctx context.Context, userID string) error {
	_, err := s.users.RevokeSessions(ctx, userID)
	return err
}
