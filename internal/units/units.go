// Package units converts between raw integer ledger units and decimal amounts.
// Decimal amounts are always raw / 10^decimals; conversions toward raw units
// truncate toward zero and never round up.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"solana-wallet/internal/domain"
)

// MaxDecimals bounds the precision accepted from configuration or the ledger.
const MaxDecimals = 18

// ParseAmount parses a user-supplied decimal amount. The amount must be positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.NewError(domain.CodeInvalidAmount,
			fmt.Sprintf("%q is not a valid amount", s), err)
	}
	if !d.IsPositive() {
		return decimal.Zero, domain.Errorf(domain.CodeInvalidAmount, "amount must be greater than zero")
	}
	return d, nil
}

// ToRaw converts a decimal amount to raw units, truncating digits beyond decimals.
func ToRaw(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if decimals > MaxDecimals {
		return 0, fmt.Errorf("decimals %d out of range", decimals)
	}
	if amount.IsNegative() {
		return 0, domain.Errorf(domain.CodeInvalidAmount, "amount must not be negative")
	}
	raw := amount.Truncate(int32(decimals)).Shift(int32(decimals)).BigInt()
	if !raw.IsUint64() {
		return 0, domain.Errorf(domain.CodeInvalidAmount, "amount %s is too large", amount.String())
	}
	return raw.Uint64(), nil
}

// FromRaw converts raw units to a decimal amount.
func FromRaw(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// Format renders amount with exactly decimals fractional digits, truncating.
func Format(amount decimal.Decimal, decimals uint8) string {
	return amount.Truncate(int32(decimals)).StringFixed(int32(decimals))
}

// RawAmount is one raw balance together with the precision it was reported in.
type RawAmount struct {
	Raw      uint64
	Decimals uint8
}

// SumRaw adds raw amounts of possibly different precisions. Each amount is
// scaled to the largest precision present before summing, so no contribution
// is rounded. The result is exact.
func SumRaw(amounts []RawAmount) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}

	var maxDec uint8
	for _, a := range amounts {
		if a.Decimals > maxDec {
			maxDec = a.Decimals
		}
	}

	total := new(big.Int)
	ten := big.NewInt(10)
	for _, a := range amounts {
		v := new(big.Int).SetUint64(a.Raw)
		if shift := maxDec - a.Decimals; shift > 0 {
			v.Mul(v, new(big.Int).Exp(ten, big.NewInt(int64(shift)), nil))
		}
		total.Add(total, v)
	}

	return decimal.NewFromBigInt(total, -int32(maxDec))
}
