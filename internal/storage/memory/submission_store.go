package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/storage"
)

// SubmissionStore is an in-memory implementation of storage.SubmissionStore.
type SubmissionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SubmissionResult // keyed by signature
}

// NewSubmissionStore creates a new in-memory submission journal.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		data: make(map[string]*domain.SubmissionResult),
	}
}

// Insert adds a new submission. Returns ErrDuplicateKey if signature exists.
func (s *SubmissionStore) Insert(_ context.Context, r *domain.SubmissionResult) error {
	if r == nil || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	rCopy := *r
	s.data[r.Signature] = &rCopy
	return nil
}

// UpdateStatus sets status, cause and updatedAt. Returns ErrNotFound if absent.
func (s *SubmissionStore) UpdateStatus(_ context.Context, signature string, status domain.SubmissionStatus, cause error, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[signature]
	if !exists {
		return storage.ErrNotFound
	}
	r.Status = status
	r.Err = cause
	r.UpdatedAt = updatedAt
	return nil
}

// GetBySignature retrieves a submission. Returns ErrNotFound if absent.
func (s *SubmissionStore) GetBySignature(_ context.Context, signature string) (*domain.SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}

	rCopy := *r
	return &rCopy, nil
}

// ListByOwner returns up to limit submissions from owner, newest first.
// A non-positive limit returns all of them.
func (s *SubmissionStore) ListByOwner(_ context.Context, owner string, limit int) ([]*domain.SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SubmissionResult
	for _, r := range s.data {
		if r.From == owner {
			rCopy := *r
			result = append(result, &rCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SubmittedAt.After(result[j].SubmittedAt)
		}
		return result[i].Signature < result[j].Signature
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.SubmissionStore = (*SubmissionStore)(nil)
