package domain

import (
	"sort"
	"strings"
)

// TokenRegistry is the static token configuration: per-network mints and
// their precision. It is populated at startup and read-only afterwards.
type TokenRegistry struct {
	byMint   map[Network]map[string]TokenDescriptor
	bySymbol map[Network]map[string]TokenDescriptor
}

// NewTokenRegistry creates an empty registry.
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{
		byMint:   make(map[Network]map[string]TokenDescriptor),
		bySymbol: make(map[Network]map[string]TokenDescriptor),
	}
}

// Add registers a token on a network. Symbols are case-insensitive.
func (r *TokenRegistry) Add(network Network, desc TokenDescriptor) {
	if r.byMint[network] == nil {
		r.byMint[network] = make(map[string]TokenDescriptor)
		r.bySymbol[network] = make(map[string]TokenDescriptor)
	}
	r.byMint[network][desc.Mint] = desc
	r.bySymbol[network][strings.ToUpper(desc.Symbol)] = desc
}

// ByMint looks up a mint on a network.
func (r *TokenRegistry) ByMint(network Network, mint string) (TokenDescriptor, bool) {
	if r == nil {
		return TokenDescriptor{}, false
	}
	desc, ok := r.byMint[network][mint]
	return desc, ok
}

// BySymbol looks up a token symbol on a network.
func (r *TokenRegistry) BySymbol(network Network, symbol string) (TokenDescriptor, bool) {
	if r == nil {
		return TokenDescriptor{}, false
	}
	desc, ok := r.bySymbol[network][strings.ToUpper(symbol)]
	return desc, ok
}

// Tokens returns the network's tokens sorted by symbol.
func (r *TokenRegistry) Tokens(network Network) []TokenDescriptor {
	if r == nil {
		return nil
	}
	out := make([]TokenDescriptor, 0, len(r.byMint[network]))
	for _, desc := range r.byMint[network] {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
