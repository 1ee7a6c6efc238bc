package store

import (
	"context"
	"sync"

	"zkconsent/internal/user/models"
)

// InMemoryStore keeps user records in memory for tests and single-process
// deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	byWallet map[string]*models.User
}

// NewMemory constructs an empty in-memory user store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{byWallet: make(map[string]*models.User)}
}

func (s *InMemoryStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.byWallet[user.WalletAddress] = &copied
	return nil
}

func (s *InMemoryStore) GetByWallet(_ context.Context, walletAddress string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byWallet[walletAddress]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *InMemoryStore) GetByCredentialCID(_ context.Context, cid string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.byWallet {
		if user.CredentialCID == cid {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) UpdateCredentialCID(_ context.Context, walletAddress, cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byWallet[walletAddress]
	if !ok {
		return ErrNotFound
	}
	user.CredentialCID = cid
	return nil
}
