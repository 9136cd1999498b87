package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/identity"
)

func newUser(t *testing.T, ids *identity.Service) identity.User {
	t.Helper()
	u, err := ids.Register(context.Background(), identity.Registration{Email: "a@campus.edu", Secret: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u
}

func TestIssueAndVerify(t *testing.T) {
	ids := identity.NewService(identity.NewMemoryRepository(), "123456").WithHashCost(bcrypt.MinCost)
	svc := NewService("secret", time.Hour, ids)
	user := newUser(t, ids)

	tok, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.ExpiresIn != 3600 {
		t.Fatalf("expected 3600s expiry, got %d", tok.ExpiresIn)
	}

	id, err := svc.Verify(context.Background(), tok.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, id)
	}
}

func TestVerifyRejects(t *testing.T) {
	ids := identity.NewService(identity.NewMemoryRepository(), "123456").WithHashCost(bcrypt.MinCost)
	svc := NewService("secret", time.Hour, ids)
	ctx := context.Background()
	user := newUser(t, ids)

	if _, err := svc.Verify(ctx, "not-a-token"); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error for garbage, got %v", err)
	}

	other := NewService("other-secret", time.Hour, ids)
	forged, _ := other.Issue(user)
	if _, err := svc.Verify(ctx, forged.AccessToken); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error for wrong key, got %v", err)
	}

	expired := NewService("secret", time.Minute, ids)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue(user)
	if _, err := svc.Verify(ctx, old.AccessToken); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error for expired token, got %v", err)
	}

	ghost, _ := svc.Issue(identity.User{ID: "ghost"})
	if _, err := svc.Verify(ctx, ghost.AccessToken); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error for unknown user, got %v", err)
	}
}

func TestRevokeInvalidatesIssuedTokens(t *testing.T) {
	ids := identity.NewService(identity.NewMemoryRepository(), "123456").WithHashCost(bcrypt.MinCost)
	svc := NewService("secret", time.Hour, ids)
	ctx := context.Background()
	user := newUser(t, ids)

	tok, _ := svc.Issue(user)
	if err := svc.Revoke(ctx, user.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Verify(ctx, tok.AccessToken); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}

	refreshed, err := ids.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	fresh, _ := svc.Issue(refreshed)
	if _, err := svc.Verify(ctx, fresh.AccessToken); err != nil {
		t.Fatalf("token issued after revoke should verify: %v", err)
	}
}
