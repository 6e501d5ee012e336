package domain

import "github.com/shopspring/decimal"

const (
	// NativeDecimals is the precision of the native asset (lamports per SOL = 10^9).
	NativeDecimals uint8 = 9

	// DefaultTokenDecimals is used when a mint's precision cannot be resolved.
	DefaultTokenDecimals uint8 = 9
)

// TokenDescriptor describes a fungible token.
type TokenDescriptor struct {
	Symbol   string
	Mint     string
	Decimals uint8
}

// AccountBalanceRecord is the balance of one on-ledger token account.
// Several records may exist for the same (owner, mint) pair.
type AccountBalanceRecord struct {
	Account   string // token account address
	Owner     string
	Mint      string
	Raw       uint64
	Decimals  uint8
	Amount    decimal.Decimal
	Canonical bool // Account is the owner's associated token account
}

// TokenBalance is the aggregated balance of one token for one owner.
type TokenBalance struct {
	Owner    string
	Mint     string
	Decimals uint8 // precision the total is formatted with
	Total    decimal.Decimal
	Records  []AccountBalanceRecord
	// Partial is set when only the canonical account could be read.
	Partial bool
}

// Formatted returns the total with exactly Decimals fractional digits.
func (b *TokenBalance) Formatted() string {
	return b.Total.Truncate(int32(b.Decimals)).StringFixed(int32(b.Decimals))
}
