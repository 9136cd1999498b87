package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/campus-market/campus_market/internal/apperr"
)

type memoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]int
	order []Listing
}

// NewMemoryRepository constructs an in-memory listing repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: make(map[string]int)}
}

func (r *memoryRepository) Create(_ context.Context, l Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[l.ID]; exists {
		return errors.New("listing exists")
	}
	r.byID[l.ID] = len(r.order)
	r.order = append(r.order, l)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return Listing{}, apperr.NotFound("listing", id)
	}
	return r.order[idx], nil
}

func (r *memoryRepository) ListByProvider(_ context.Context, providerID string) ([]Listing, error) {
	return r.filter(func(l Listing) bool { return l.ProviderID == providerID }), nil
}

func (r *memoryRepository) ListVisible(_ context.Context) ([]Listing, error) {
	return r.filter(func(l Listing) bool { return l.Visible }), nil
}

func (r *memoryRepository) Search(_ context.Context, term string) ([]Listing, error) {
	needle := strings.ToLower(term)
	return r.filter(func(l Listing) bool {
		return l.Visible && (strings.Contains(strings.ToLower(l.Title), needle) ||
			strings.Contains(strings.ToLower(l.Category), needle))
	}), nil
}

func (r *memoryRepository) Recent(_ context.Context, n int) ([]Listing, error) {
	if n <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Listing, 0, min(n, len(r.order)))
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		if r.order[i].Visible {
			out = append(out, r.order[i])
		}
	}
	return out, nil
}

func (r *memoryRepository) SetVisible(_ context.Context, id string, visible bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[id]
	if !ok {
		return apperr.NotFound("listing", id)
	}
	r.order[idx].Visible = visible
	return nil
}

func (r *memoryRepository) filter(keep func(Listing) bool) []Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Listing
	for _, l := range r.order {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}
