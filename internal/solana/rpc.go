package solana

import "context"

// Commitment levels used by the wallet.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// RPCClient defines the Solana JSON-RPC methods the wallet uses against a
// single endpoint.
type RPCClient interface {
	// Endpoint returns the URL this client talks to.
	Endpoint() string

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetAccountInfo returns account info, or nil if the account does not exist.
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)

	// GetTokenAccountBalance returns the balance of one token account.
	// Returns ErrAccountNotFound if the account does not exist.
	GetTokenAccountBalance(ctx context.Context, account string) (*TokenAmount, error)

	// GetTokenAccountsByOwner lists parsed token accounts owned by owner.
	GetTokenAccountsByOwner(ctx context.Context, owner string, filter TokenAccountsFilter) ([]TokenAccount, error)

	// GetLatestBlockhash returns a recent blockhash and its validity bound.
	GetLatestBlockhash(ctx context.Context) (*LatestBlockhash, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context) (uint64, error)

	// SendTransaction submits a serialized, signed transaction and returns its signature.
	SendTransaction(ctx context.Context, tx []byte, opts SendOptions) (string, error)

	// GetSignatureStatuses returns one entry per signature; nil entries are unknown.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}
