package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"cashflow/internal/core"
)

// Store keeps the last projection written for each account.
type Store struct {
	mu       sync.Mutex
	accounts map[string][]core.GeneratedTransaction
	writes   int
}

func New() *Store {
	return &Store{accounts: make(map[string][]core.GeneratedTransaction)}
}

// WriteProjection replaces the account's rows and returns a synthetic reference.
func (s *Store) WriteProjection(_ context.Context, accountID string, txns []core.GeneratedTransaction) (string, error) {
	if accountID == "" {
		return "", errors.New("account id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountID] = slices.Clone(txns)
	s.writes++
	return fmt.Sprintf("mem:%s:%d", accountID, s.writes), nil
}

// Projection returns a copy of the rows last written for accountID.
func (s *Store) Projection(accountID string) []core.GeneratedTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.accounts[accountID])
}

func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
