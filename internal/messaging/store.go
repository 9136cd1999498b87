package messaging

import (
	"context"
	"sync"

	"github.com/campus-market/campus_market/internal/apperr"
)

// Store persists threads and their messages.
type Store interface {
	// Open returns the thread for key, creating it with the given participants if absent.
	Open(ctx context.Context, thread Thread) (Thread, error)
	Get(ctx context.Context, key ThreadKey) (Thread, error)
	Append(ctx context.Context, key ThreadKey, msg Message) error
	// ListFor returns threads the user participates in, oldest first.
	ListFor(ctx context.Context, userID string) ([]Thread, error)
}

type memoryStore struct {
	mu      sync.RWMutex
	threads map[ThreadKey]*Thread
	order   []ThreadKey
}

// NewMemoryStore creates an in-memory thread store.
func NewMemoryStore() Store {
	return &memoryStore{threads: make(map[ThreadKey]*Thread)}
}

func (s *memoryStore) Open(_ context.Context, thread Thread) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.threads[thread.Key]; ok {
		return clone(existing), nil
	}
	stored := thread
	stored.Messages = nil
	s.threads[thread.Key] = &stored
	s.order = append(s.order, thread.Key)
	return clone(&stored), nil
}

func (s *memoryStore) Get(_ context.Context, key ThreadKey) (Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[key]
	if !ok {
		return Thread{}, apperr.NotFound("thread", string(key))
	}
	return clone(t), nil
}

func (s *memoryStore) Append(_ context.Context, key ThreadKey, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[key]
	if !ok {
		return apperr.NotFound("thread", string(key))
	}
	t.Messages = append(t.Messages, msg)
	return nil
}

func (s *memoryStore) ListFor(_ context.Context, userID string) ([]Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Thread
	for _, key := range s.order {
		if t := s.threads[key]; t.Includes(userID) {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func clone(t *Thread) Thread {
	out := *t
	out.Participants = append([]string(nil), t.Participants...)
	out.Messages = append([]Message(nil), t.Messages...)
	return out
}
