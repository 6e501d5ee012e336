package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/storage"
)

// BalanceSnapshotStore is an in-memory implementation of storage.BalanceSnapshotStore.
type BalanceSnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BalanceSnapshot // keyed by (network, owner, asset, taken_at_ms)
}

// NewBalanceSnapshotStore creates a new in-memory balance history store.
func NewBalanceSnapshotStore() *BalanceSnapshotStore {
	return &BalanceSnapshotStore{
		data: make(map[string]*domain.BalanceSnapshot),
	}
}

func snapshotKey(network domain.Network, owner, asset string, takenAtMs int64) string {
	return fmt.Sprintf("%s|%s|%s|%d", network, owner, asset, takenAtMs)
}

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate.
func (s *BalanceSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.Owner == "" || snap.Asset == "" {
			return storage.ErrInvalidInput
		}
		key := snapshotKey(snap.Network, snap.Owner, snap.Asset, snap.TakenAtMs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, snap := range snapshots {
		snapCopy := *snap
		s.data[snapshotKey(snap.Network, snap.Owner, snap.Asset, snap.TakenAtMs)] = &snapCopy
	}
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive), ordered by time ASC.
func (s *BalanceSnapshotStore) GetByTimeRange(_ context.Context, network domain.Network, owner, asset string, start, end int64) ([]*domain.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalanceSnapshot
	for _, snap := range s.data {
		if snap.Network == network && snap.Owner == owner && snap.Asset == asset &&
			snap.TakenAtMs >= start && snap.TakenAtMs <= end {
			snapCopy := *snap
			result = append(result, &snapCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TakenAtMs < result[j].TakenAtMs
	})
	return result, nil
}

// Latest returns the most recent snapshot. Returns ErrNotFound if none exists.
func (s *BalanceSnapshotStore) Latest(_ context.Context, network domain.Network, owner, asset string) (*domain.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.BalanceSnapshot
	for _, snap := range s.data {
		if snap.Network != network || snap.Owner != owner || snap.Asset != asset {
			continue
		}
		if latest == nil || snap.TakenAtMs > latest.TakenAtMs {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	snapCopy := *latest
	return &snapCopy, nil
}

var _ storage.BalanceSnapshotStore = (*BalanceSnapshotStore)(nil)
