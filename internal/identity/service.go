package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-market/campus_market/internal/apperr"
)

// Service manages the identity lifecycle: registration, verification,
// authentication and balance mutation on behalf of the ledger.
type Service struct {
	repo             Repository
	verificationCode string
	hashCost         int
}

// NewService creates a new identity service that accepts verificationCode as
// the only valid verification token.
func NewService(repo Repository, verificationCode string) *Service {
	return &Service{repo: repo, verificationCode: verificationCode, hashCost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Seeding and tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// VerificationCode returns the token that Verify accepts.
func (s *Service) VerificationCode() string {
	return s.verificationCode
}

// Register creates an unverified user with zero balances and a hashed secret.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	email := strings.TrimSpace(reg.Email)
	if email == "" {
		return User{}, apperr.Validation("email is required")
	}
	if reg.Secret == "" {
		return User{}, apperr.Validation("secret is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Secret), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash secret: %w", err)
	}

	user := User{
		ID:         uuid.New().String(),
		Email:      email,
		Phone:      strings.TrimSpace(reg.Phone),
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Verify marks the user verified when code matches the verification token.
// A user can be verified once; later attempts fail with apperr.ErrAlreadyVerified.
func (s *Service) Verify(ctx context.Context, userID, code string) (User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(s.verificationCode)) != 1 {
		return User{}, apperr.ErrInvalidCode
	}
	if err := s.repo.MarkVerified(ctx, user.ID); err != nil {
		return User{}, err
	}
	user.Verified = true
	return user, nil
}

// Authenticate returns the first registered user whose email and secret match.
// Email is not unique, so every candidate is checked in registration order.
func (s *Service) Authenticate(ctx context.Context, email, secret string) (User, error) {
	candidates, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return User{}, err
	}

	for _, user := range candidates {
		if bcrypt.CompareHashAndPassword(user.SecretHash, []byte(secret)) != nil {
			continue
		}
		if !user.Verified {
			return User{}, apperr.ErrNotVerified
		}
		return user, nil
	}

	return User{}, apperr.ErrAuth
}

// SetBiometric sets the biometric login flag. Setting the current value is a no-op.
func (s *Service) SetBiometric(ctx context.Context, userID string, enabled bool) (User, error) {
	if err := s.repo.SetBiometric(ctx, userID, enabled); err != nil {
		return User{}, err
	}
	return s.repo.FindByID(ctx, userID)
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	return s.repo.FindByID(ctx, userID)
}

// UpdateBalances applies fn atomically to the user's balances.
func (s *Service) UpdateBalances(ctx context.Context, userID string, fn BalanceFunc) (User, error) {
	return s.repo.UpdateBalances(ctx, userID, fn)
}

// RevokeSessions invalidates every session token issued to the user so far.
func (s *Service) RevokeSessions(ctx context.Context, userID string) (int, error) {
	return s.repo.BumpTokenVersion(ctx, userID)
}
