package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SignatureSubscribe waits for a signature to reach the confirmed
	// commitment. The channel yields at most one notification and is then closed.
	SignatureSubscribe(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification reports the outcome of a subscribed signature.
type SignatureNotification struct {
	Signature string
	Slot      uint64
	// Err is the on-chain execution error, nil on success.
	Err interface{}
}
