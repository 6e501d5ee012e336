package storage

import (
	"context"
	"time"

	"solana-wallet/internal/domain"
)

// SecretStore persists one wallet secret. The core never decides
// persistence policy; it only hands bytes to and from this interface.
type SecretStore interface {
	// LoadSecret returns the stored secret. Returns ErrNotFound if none is stored.
	LoadSecret(ctx context.Context) ([]byte, error)

	// StoreSecret replaces the stored secret. publicID is the account address.
	StoreSecret(ctx context.Context, secret []byte, publicID string) error

	// ClearSecret removes the stored secret. Clearing an empty store is not an error.
	ClearSecret(ctx context.Context) error
}

// SubmissionStore is the journal of submitted transfers, keyed by signature.
type SubmissionStore interface {
	// Insert records a new submission. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, r *domain.SubmissionResult) error

	// UpdateStatus sets the status of a recorded submission. Returns ErrNotFound if absent.
	UpdateStatus(ctx context.Context, signature string, status domain.SubmissionStatus, cause error, updatedAt time.Time) error

	// GetBySignature retrieves a submission. Returns ErrNotFound if absent.
	GetBySignature(ctx context.Context, signature string) (*domain.SubmissionResult, error)

	// ListByOwner returns up to limit submissions sent from owner, newest first.
	ListByOwner(ctx context.Context, owner string, limit int) ([]*domain.SubmissionResult, error)
}

// BalanceSnapshotStore keeps the balance history written by the refresher.
type BalanceSnapshotStore interface {
	// InsertBulk appends snapshots. Fails the entire batch on any duplicate
	// (network, owner, asset, taken_at_ms).
	InsertBulk(ctx context.Context, snapshots []*domain.BalanceSnapshot) error

	// GetByTimeRange returns snapshots within [start, end] (inclusive), ordered by time ASC.
	GetByTimeRange(ctx context.Context, network domain.Network, owner, asset string, start, end int64) ([]*domain.BalanceSnapshot, error)

	// Latest returns the most recent snapshot. Returns ErrNotFound if none exists.
	Latest(ctx context.Context, network domain.Network, owner, asset string) (*domain.BalanceSnapshot, error)
}
