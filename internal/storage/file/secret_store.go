// Package file implements storage.SecretStore as a Solana CLI style keypair
// file: a JSON array of the 64 secret key bytes, mode 0600.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"solana-wallet/internal/storage"
)

const fileMode = 0o600

// SecretStore keeps one secret in a keypair file. Writes are atomic.
type SecretStore struct {
	mu   sync.Mutex
	path string
}

// NewSecretStore returns a store backed by path. The file is not created
// until StoreSecret is called.
func NewSecretStore(path string) *SecretStore {
	return &SecretStore{path: path}
}

// Path returns the keypair file path.
func (s *SecretStore) Path() string {
	return s.path
}

// LoadSecret reads the keypair file. Returns storage.ErrNotFound if it does not exist.
func (s *SecretStore) LoadSecret(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	defer wipe(data)

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("keypair file %s is malformed: %w", s.path, err)
	}
	defer wipeInts(ints)

	secret := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			wipe(secret)
			return nil, fmt.Errorf("keypair file %s has out-of-range value at %d", s.path, i)
		}
		secret[i] = byte(v)
	}
	return secret, nil
}

// StoreSecret atomically replaces the keypair file. publicID is not written;
// it is derivable from the secret.
func (s *SecretStore) StoreSecret(_ context.Context, secret []byte, _ string) error {
	if len(secret) == 0 {
		return storage.ErrInvalidInput
	}

	ints := make([]int, len(secret))
	for i, b := range secret {
		ints[i] = int(b)
	}
	defer wipeInts(ints)

	data, err := json.Marshal(ints)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}
	defer wipe(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create keypair directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write keypair file: %w", err)
	}
	if err := os.Chmod(s.path, fileMode); err != nil {
		return fmt.Errorf("restrict keypair file: %w", err)
	}
	return nil
}

// ClearSecret removes the keypair file. A missing file is not an error.
func (s *SecretStore) ClearSecret(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove keypair file: %w", err)
	}
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func wipeInts(v []int) {
	for i := range v {
		v[i] = 0
	}
}

var _ storage.SecretStore = (*SecretStore)(nil)
