// Package ledgertest wires stub RPC clients into a resilient ledger client.
package ledgertest

import (
	"testing"
	"time"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/ledger"
	"solana-wallet/internal/solana"
	"solana-wallet/internal/solana/stub"
)

// NewClient returns a client whose endpoints on network are stubs, the first
// being the primary.
func NewClient(t testing.TB, network domain.Network, timeout time.Duration, stubs ...*stub.RPCClient) *ledger.Client {
	t.Helper()
	byURL := make(map[string]*stub.RPCClient, len(stubs))
	endpoints := make([]domain.Endpoint, 0, len(stubs))
	for i, s := range stubs {
		role := domain.RoleFallback
		if i == 0 {
			role = domain.RolePrimary
		}
		byURL[s.URL] = s
		endpoints = append(endpoints, domain.Endpoint{Network: network, URL: s.URL, Priority: i, Role: role})
	}

	pool, err := ledger.NewEndpointPool(endpoints)
	if err != nil {
		t.Fatalf("endpoint pool: %v", err)
	}

	return ledger.NewClient(pool, ledger.Options{
		AttemptTimeout: timeout,
		Dial: func(ep domain.Endpoint) solana.RPCClient {
			return byURL[ep.URL]
		},
	})
}
