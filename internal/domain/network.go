package domain

import "fmt"

// Network identifies a logical ledger network.
type Network string

const (
	Mainnet Network = "mainnet"
	Devnet  Network = "devnet"
	Testnet Network = "testnet"
)

// ParseNetwork validates a network name.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case Mainnet, Devnet, Testnet:
		return Network(s), nil
	case "mainnet-beta":
		return Mainnet, nil
	default:
		return "", fmt.Errorf("unknown network %q", s)
	}
}

// EndpointRole distinguishes the primary endpoint from its fallbacks.
type EndpointRole string

const (
	RolePrimary  EndpointRole = "primary"
	RoleFallback EndpointRole = "fallback"
)

// Endpoint is one ledger RPC address in a network's priority list.
type Endpoint struct {
	Network  Network
	URL      string
	WSURL    string // optional, enables subscription-based confirmation
	Priority int    // 0 is tried first
	Role     EndpointRole

	// Client-side throttle; zero disables it.
	RequestsPerSecond float64
	Burst             int
}

// String returns the endpoint URL.
func (e Endpoint) String() string {
	return e.URL
}
