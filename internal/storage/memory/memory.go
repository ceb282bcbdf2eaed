// Package memory is a process-local transaction store for development
// runs and tests. Data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu    sync.RWMutex
	items []core.Transaction
	ids   map[uuid.UUID]struct{}
}

func New() *Store {
	return &Store{ids: make(map[uuid.UUID]struct{})}
}

// InsertTransaction appends t, rejecting a reused id like a primary key would.
func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[t.ID]; dup {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	s.ids[t.ID] = struct{}{}
	s.items = append(s.items, t)
	return nil
}

// ListTransactions returns the session's rows in insertion order.
func (s *Store) ListTransactions(_ context.Context, sessionID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.items {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, sessionID string, id uuid.UUID) (*core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.items {
		if t.ID == id && t.SessionID == sessionID {
			found := t
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) SumAmounts(ctx context.Context, sessionID string) (core.Money, error) {
	txs, _ := s.ListTransactions(ctx, sessionID)
	return core.Sum(txs), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
