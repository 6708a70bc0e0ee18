// Package accounts is the account-service collaborator: account-wide
// flags that override secret manager behavior.
package accounts

import (
	"context"
	"sync"

	smerrors "github.com/systmms/secretmgr/internal/errors"
)

// Account carries the flags the core reads.
type Account struct {
	ID string
	// LocalEncryptionEnabled forces the account to the implicit Local
	// manager: all other managers are suppressed from listings.
	LocalEncryptionEnabled bool
	CertValidationRequired bool
}

// Service is the account collaborator interface.
type Service interface {
	Get(ctx context.Context, accountID string) (Account, error)
	IsCertValidationRequired(ctx context.Context, accountID string) bool
}

// MemoryService is an in-memory Service for tests and the CLI. Unknown
// accounts resolve to a zero-flag account.
type MemoryService struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryService creates an empty service.
func NewMemoryService() *MemoryService {
	return &MemoryService{accounts: make(map[string]Account)}
}

// Put registers or replaces an account.
func (s *MemoryService) Put(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *MemoryService) Get(ctx context.Context, accountID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[accountID]; ok {
		return a, nil
	}
	if accountID == "" {
		return Account{}, smerrors.ValidationError{Field: "accountId", Message: "account id is required"}
	}
	return Account{ID: accountID}, nil
}

func (s *MemoryService) IsCertValidationRequired(ctx context.Context, accountID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[accountID].CertValidationRequired
}
