package memory

import (
	"context"
	"sync"

	"solana-wallet/internal/storage"
)

// SecretStore is an in-memory implementation of storage.SecretStore.
type SecretStore struct {
	mu       sync.Mutex
	secret   []byte
	publicID string
}

// NewSecretStore creates an empty in-memory secret store.
func NewSecretStore() *SecretStore {
	return &SecretStore{}
}

// LoadSecret returns a copy of the stored secret. Returns ErrNotFound if empty.
func (s *SecretStore) LoadSecret(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secret == nil {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), s.secret...), nil
}

// StoreSecret replaces the stored secret, wiping the previous one.
func (s *SecretStore) StoreSecret(_ context.Context, secret []byte, publicID string) error {
	if len(secret) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wipe(s.secret)
	s.secret = append([]byte(nil), secret...)
	s.publicID = publicID
	return nil
}

// ClearSecret wipes and removes the stored secret.
func (s *SecretStore) ClearSecret(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wipe(s.secret)
	s.secret = nil
	s.publicID = ""
	return nil
}

// PublicID returns the address recorded with the secret.
func (s *SecretStore) PublicID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicID
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ storage.SecretStore = (*SecretStore)(nil)
