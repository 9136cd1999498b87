package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/campus-market/campus_market/internal/apperr"
)

type memoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string][]string
}

// NewMemoryRepository builds an in-memory user store keyed by id with a
// secondary email index.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		users:   make(map[string]User),
		byEmail: make(map[string][]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.ID]; exists {
		return errors.New("user exists")
	}
	r.users[user.ID] = user
	r.byEmail[user.Email] = append(r.byEmail[user.Email], user.ID)
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, apperr.NotFound("user", id)
	}
	return user, nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byEmail[email]
	users := make([]User, 0, len(ids))
	for _, id := range ids {
		users = append(users, r.users[id])
	}
	return users, nil
}

func (r *memoryRepository) MarkVerified(_ context.Context, id string) error {
	return r.update(id, func(u *User) error {
		if u.Verified {
			return apperr.ErrAlreadyVerified
		}
		u.Verified = true
		return nil
	})
}

func (r *memoryRepository) SetBiometric(_ context.Context, id string, enabled bool) error {
	return r.update(id, func(u *User) error {
		u.BiometricEnabled = enabled
		return nil
	})
}

func (r *memoryRepository) UpdateBalances(_ context.Context, id string, fn BalanceFunc) (User, error) {
	var out User
	err := r.update(id, func(u *User) error {
		if err := applyBalanceFunc(&u.Balances, fn); err != nil {
			return err
		}
		out = *u
		return nil
	})
	return out, err
}

func (r *memoryRepository) BumpTokenVersion(_ context.Context, id string) (int, error) {
	var version int
	err := r.update(id, func(u *User) error {
		u.TokenVersion++
		version = u.TokenVersion
		return nil
	})
	return version, err
}

// update applies fn under the write lock and stores the result only on success.
func (r *memoryRepository) update(id string, fn func(u *User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return apperr.NotFound("user", id)
	}
	if err := fn(&user); err != nil {
		return err
	}
	r.users[id] = user
	return nil
}
