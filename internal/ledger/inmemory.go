package ledger

import (
	"context"
	"slices"
	"sync"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/money"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	transactions []Transaction
	settled      map[string]string
	payouts      []Payout
	fees         money.Amount
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests.
func NewInMemory() Store {
	return &inMemoryStore{settled: make(map[string]string)}
}

func (s *inMemoryStore) Record(_ context.Context, tx Transaction, exclusive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.settled[tx.ListingID]; done && exclusive {
		return apperr.ErrAlreadySettled
	}
	if exclusive {
		s.settled[tx.ListingID] = tx.ID
	}
	s.transactions = append(s.transactions, tx)
	s.fees += tx.Fee
	return nil
}

func (s *inMemoryStore) Void(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.transactions, func(tx Transaction) bool { return tx.ID == txID })
	if i < 0 {
		return apperr.NotFound("transaction", txID)
	}
	tx := s.transactions[i]
	s.transactions = slices.Delete(s.transactions, i, i+1)
	s.fees -= tx.Fee
	if s.settled[tx.ListingID] == txID {
		delete(s.settled, tx.ListingID)
	}
	return nil
}

func (s *inMemoryStore) Settled(_ context.Context, listingID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, done := s.settled[listingID]
	return done, nil
}

func (s *inMemoryStore) Transactions(_ context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transaction(nil), s.transactions...), nil
}

func (s *inMemoryStore) ForUser(_ context.Context, userID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, tx := range s.transactions {
		if tx.BuyerID == userID || tx.ProviderID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *inMemoryStore) TotalFees(_ context.Context) (money.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fees, nil
}

func (s *inMemoryStore) RecordPayout(_ context.Context, p Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts = append(s.payouts, p)
	return nil
}

func (s *inMemoryStore) Payouts(_ context.Context, userID string) ([]Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Payout
	for _, p := range s.payouts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}
