package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/storage"
)

// BalanceSnapshotStore implements storage.BalanceSnapshotStore using ClickHouse.
type BalanceSnapshotStore struct {
	conn    *Conn
	metrics *observability.Metrics
}

// NewBalanceSnapshotStore creates a new BalanceSnapshotStore. metrics may be nil.
func NewBalanceSnapshotStore(conn *Conn, metrics *observability.Metrics) *BalanceSnapshotStore {
	return &BalanceSnapshotStore{conn: conn, metrics: metrics}
}

// Compile-time interface check.
var _ storage.BalanceSnapshotStore = (*BalanceSnapshotStore)(nil)

type snapshotKey struct {
	network domain.Network
	owner   string
	asset   string
	takenAt int64
}

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate
// (network, owner, asset, taken_at_ms).
func (s *BalanceSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	start := time.Now()

	// Check for intra-batch duplicates
	seen := make(map[snapshotKey]struct{}, len(snapshots))
	for _, snap := range snapshots {
		k := snapshotKey{snap.Network, snap.Owner, snap.Asset, snap.TakenAtMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// MergeTree does not enforce uniqueness, so check existing rows first.
	for _, snap := range snapshots {
		exists, err := s.exists(ctx, snap)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO balance_snapshots (
			network, owner, asset, amount, decimals, degraded, taken_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		var degraded uint8
		if snap.Degraded {
			degraded = 1
		}
		err = batch.Append(
			string(snap.Network), snap.Owner, snap.Asset, snap.Amount,
			snap.Decimals, degraded, uint64(snap.TakenAtMs),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	err = batch.Send()
	s.metrics.RecordDBQuery("clickhouse", "insert_bulk", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive), ordered by time ASC.
func (s *BalanceSnapshotStore) GetByTimeRange(ctx context.Context, network domain.Network, owner, asset string, start, end int64) ([]*domain.BalanceSnapshot, error) {
	query := `
		SELECT network, owner, asset, amount, decimals, degraded, taken_at_ms
		FROM balance_snapshots
		WHERE network = ? AND owner = ? AND asset = ?
			AND taken_at_ms >= ? AND taken_at_ms <= ?
		ORDER BY taken_at_ms ASC
	`

	began := time.Now()
	rows, err := s.conn.Query(ctx, query, string(network), owner, asset, uint64(start), uint64(end))
	s.metrics.RecordDBQuery("clickhouse", "get_by_time_range", time.Since(began).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanBalanceSnapshots(rows)
}

// Latest returns the most recent snapshot. Returns ErrNotFound if none exists.
func (s *BalanceSnapshotStore) Latest(ctx context.Context, network domain.Network, owner, asset string) (*domain.BalanceSnapshot, error) {
	query := `
		SELECT network, owner, asset, amount, decimals, degraded, taken_at_ms
		FROM balance_snapshots
		WHERE network = ? AND owner = ? AND asset = ?
		ORDER BY taken_at_ms DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, string(network), owner, asset)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	snaps, err := scanBalanceSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

func (s *BalanceSnapshotStore) exists(ctx context.Context, snap *domain.BalanceSnapshot) (bool, error) {
	query := `
		SELECT count(*) FROM balance_snapshots
		WHERE network = ? AND owner = ? AND asset = ? AND taken_at_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, string(snap.Network), snap.Owner, snap.Asset, uint64(snap.TakenAtMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanBalanceSnapshots(rows chRows) ([]*domain.BalanceSnapshot, error) {
	var snaps []*domain.BalanceSnapshot

	for rows.Next() {
		var (
			snap     domain.BalanceSnapshot
			network  string
			degraded uint8
			takenAt  uint64
		)
		err := rows.Scan(
			&network, &snap.Owner, &snap.Asset, &snap.Amount,
			&snap.Decimals, &degraded, &takenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan balance snapshot row: %w", err)
		}

		snap.Network = domain.Network(network)
		snap.Degraded = degraded == 1
		snap.TakenAtMs = int64(takenAt)
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance snapshot rows: %w", err)
	}

	return snaps, nil
}
