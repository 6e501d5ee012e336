// Package ledger executes ledger operations against a prioritized list of
// RPC endpoints, failing over in order until one succeeds.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"solana-wallet/internal/domain"
)

// ErrNoEndpoints is returned when a pool is built without endpoints.
var ErrNoEndpoints = errors.New("at least one endpoint is required")

// EndpointPool holds the per-network endpoint order. It is immutable after
// construction and safe for concurrent reads.
type EndpointPool struct {
	byNetwork map[domain.Network][]domain.Endpoint
}

// NewEndpointPool validates endpoints and orders them per network: primary
// first, then by ascending priority, ties kept in input order.
func NewEndpointPool(endpoints []domain.Endpoint) (*EndpointPool, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	byNetwork := make(map[domain.Network][]domain.Endpoint)
	for i, ep := range endpoints {
		if ep.URL == "" {
			return nil, fmt.Errorf("endpoint %d: empty url", i)
		}
		if ep.Network == "" {
			return nil, fmt.Errorf("endpoint %s: empty network", ep.URL)
		}
		if ep.Role == "" {
			ep.Role = domain.RoleFallback
		}
		byNetwork[ep.Network] = append(byNetwork[ep.Network], ep)
	}

	for network, eps := range byNetwork {
		primaries := 0
		for _, ep := range eps {
			if ep.Role == domain.RolePrimary {
				primaries++
			}
		}
		if primaries > 1 {
			return nil, fmt.Errorf("network %s: %d primary endpoints, want at most 1", network, primaries)
		}
		sort.SliceStable(eps, func(i, j int) bool {
			pi, pj := eps[i].Role == domain.RolePrimary, eps[j].Role == domain.RolePrimary
			if pi != pj {
				return pi
			}
			return eps[i].Priority < eps[j].Priority
		})
	}

	return &EndpointPool{byNetwork: byNetwork}, nil
}

// EndpointsInOrder returns a copy of the network's endpoints in attempt order.
func (p *EndpointPool) EndpointsInOrder(network domain.Network) []domain.Endpoint {
	eps := p.byNetwork[network]
	out := make([]domain.Endpoint, len(eps))
	copy(out, eps)
	return out
}

// Networks returns the configured networks in sorted order.
func (p *EndpointPool) Networks() []domain.Network {
	out := make([]domain.Network, 0, len(p.byNetwork))
	for n := range p.byNetwork {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Primary returns the first endpoint for network.
func (p *EndpointPool) Primary(network domain.Network) (domain.Endpoint, bool) {
	eps := p.byNetwork[network]
	if len(eps) == 0 {
		return domain.Endpoint{}, false
	}
	return eps[0], true
}
