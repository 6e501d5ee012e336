package units

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet/internal/domain"
)

func TestToRaw_Truncates(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     uint64
	}{
		{"1.5", 9, 1_500_000_000},
		{"0.0000019", 6, 1},
		{"0.0000009", 6, 0},
		{"12.345678999", 6, 12_345_678},
		{"100", 0, 100},
		{"100.99", 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := ToRaw(decimal.RequireFromString(tt.amount), tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToRaw_RoundTripNeverRoundsUp(t *testing.T) {
	amounts := []string{"0.1", "0.123456789123", "999.9999999", "1", "0.000000001", "42.424242"}
	for _, s := range amounts {
		a := decimal.RequireFromString(s)
		for d := uint8(0); d <= 12; d++ {
			raw, err := ToRaw(a, d)
			require.NoError(t, err)

			back := FromRaw(raw, d)
			want := a.Truncate(int32(d))
			assert.True(t, back.Equal(want), "amount %s decimals %d: got %s want %s", s, d, back, want)
			assert.True(t, back.LessThanOrEqual(a), "round trip must not exceed input")
		}
	}
}

func TestToRaw_Rejects(t *testing.T) {
	_, err := ToRaw(decimal.RequireFromString("-1"), 6)
	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))

	_, err = ToRaw(decimal.RequireFromString("18446744073709551616"), 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))

	_, err = ToRaw(decimal.NewFromInt(1), 19)
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("1.25")
	require.NoError(t, err)
	assert.Equal(t, "1.25", d.String())

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := ParseAmount(bad)
		assert.True(t, errors.Is(err, domain.ErrInvalidAmount), "input %q", bad)
	}
}

func TestSumRaw_MixedPrecision(t *testing.T) {
	total := SumRaw([]RawAmount{
		{Raw: 10_000_000, Decimals: 6},    // 10
		{Raw: 5_000_000_000, Decimals: 9}, // 5
		{Raw: 1, Decimals: 9},             // 0.000000001
	})
	assert.Equal(t, "15.000000001", total.String())
	assert.Equal(t, "15.000000", Format(total, 6))
}

func TestSumRaw_Empty(t *testing.T) {
	assert.True(t, SumRaw(nil).IsZero())
	assert.Equal(t, "0.000000000", Format(decimal.Zero, 9))
}
