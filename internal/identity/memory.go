package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/gavelworks/gavel/internal/common"
)

// MemoryAccounts is an in-memory Accounts used in tests.
type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]Account)}
}

func (r *MemoryAccounts) Insert(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[a.Username]; ok {
		return fmt.Errorf("username %q taken: %w", a.Username, common.ErrConflict)
	}
	r.accounts[a.Username] = a
	return nil
}

func (r *MemoryAccounts) Find(_ context.Context, username string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[username]
	if !ok {
		return Account{}, fmt.Errorf("account %q: %w", username, common.ErrNotFound)
	}
	return a, nil
}

func (r *MemoryAccounts) Update(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[a.Username]; !ok {
		return fmt.Errorf("account %q: %w", a.Username, common.ErrNotFound)
	}
	r.accounts[a.Username] = a
	return nil
}
